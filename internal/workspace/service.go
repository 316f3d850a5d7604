package workspace

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/rbac"
	"crm-platform/internal/store"
	"crm-platform/pkg/validate"

	"github.com/google/uuid"
)

var ErrNotMember = errors.New("not a member of this workspace")

type Service struct {
	repo     Repository
	activity *audit.Service
	clock    func() time.Time
}

// NewService returns a service over repo. A nil repo yields ErrNotConfigured from every call.
func NewService(repo Repository, activity *audit.Service) *Service {
	return &Service{repo: repo, activity: activity, clock: time.Now}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func Slugify(name string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(s, "-")
}

// Create makes a workspace and adds creatorID as its admin.
func (s *Service) Create(ctx context.Context, creatorID string, req CreateRequest) (Workspace, error) {
	if s.repo == nil {
		return Workspace{}, store.ErrNotConfigured
	}
	if err := validate.Struct(req); err != nil {
		return Workspace{}, err
	}
	slug := req.Slug
	if slug == "" {
		slug = Slugify(req.Name)
	}
	if slug == "" {
		return Workspace{}, store.ErrInvalidArgument
	}

	now := s.clock().UTC()
	w := Workspace{ID: uuid.NewString(), Name: strings.TrimSpace(req.Name), Slug: slug, CreatedAt: now}
	if err := s.repo.Insert(ctx, w); err != nil {
		return Workspace{}, err
	}
	if creatorID != "" {
		if err := s.repo.UpsertMember(ctx, Membership{UserID: creatorID, WorkspaceID: w.ID, Role: rbac.RoleAdmin, CreatedAt: now}); err != nil {
			return Workspace{}, err
		}
	}
	s.activity.Record(ctx, audit.Event{
		Type:        audit.EventWorkspaceCreated,
		WorkspaceID: w.ID,
		TargetType:  "workspace",
		TargetID:    w.ID,
		Message:     w.Name,
	})
	return w, nil
}

func (s *Service) Get(ctx context.Context, id string) (Workspace, error) {
	if s.repo == nil {
		return Workspace{}, store.ErrNotConfigured
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) ListAll(ctx context.Context) ([]Workspace, error) {
	if s.repo == nil {
		return nil, store.ErrNotConfigured
	}
	return s.repo.ListAll(ctx)
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]Membership, error) {
	if s.repo == nil {
		return nil, store.ErrNotConfigured
	}
	if userID == "" {
		return nil, store.ErrInvalidArgument
	}
	return s.repo.ListForUser(ctx, userID)
}

func (s *Service) ListMembers(ctx context.Context, workspaceID string) ([]Membership, error) {
	if s.repo == nil {
		return nil, store.ErrNotConfigured
	}
	return s.repo.ListMembers(ctx, workspaceID)
}

// AddMember inserts or updates the membership of userID in workspaceID.
func (s *Service) AddMember(ctx context.Context, workspaceID, userID string, role rbac.Role) error {
	if s.repo == nil {
		return store.ErrNotConfigured
	}
	if workspaceID == "" || userID == "" || !role.Valid() {
		return store.ErrInvalidArgument
	}
	err := s.repo.UpsertMember(ctx, Membership{UserID: userID, WorkspaceID: workspaceID, Role: role, CreatedAt: s.clock().UTC()})
	if err != nil {
		return err
	}
	s.activity.Record(ctx, audit.Event{
		Type:        audit.EventMemberAdded,
		WorkspaceID: workspaceID,
		TargetType:  "user",
		TargetID:    userID,
		Metadata:    map[string]string{"role": string(role)},
	})
	return nil
}

func (s *Service) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	if s.repo == nil {
		return store.ErrNotConfigured
	}
	if err := s.repo.RemoveMember(ctx, workspaceID, userID); err != nil {
		return err
	}
	s.activity.Record(ctx, audit.Event{
		Type:        audit.EventMemberRemoved,
		WorkspaceID: workspaceID,
		TargetType:  "user",
		TargetID:    userID,
	})
	return nil
}

// IsMember reports whether userID belongs to workspaceID and with which role.
func (s *Service) IsMember(ctx context.Context, workspaceID, userID string) (rbac.Role, bool, error) {
	ms, err := s.ListForUser(ctx, userID)
	if err != nil {
		return "", false, err
	}
	for _, m := range ms {
		if m.WorkspaceID == workspaceID {
			return m.Role, true, nil
		}
	}
	return "", false, nil
}
