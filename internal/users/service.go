package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/auth"
	"crm-platform/internal/rbac"
	"crm-platform/internal/store"
	"crm-platform/internal/workspace"
	"crm-platform/pkg/logger"
	"crm-platform/pkg/validate"

	"github.com/google/uuid"
)

var (
	ErrSignUpClosed       = fmt.Errorf("%w: sign-up is by invitation only", rbac.ErrForbidden)
	ErrInvitationExpired  = fmt.Errorf("%w: invitation expired", store.ErrInvalidArgument)
	ErrInvitationAccepted = fmt.Errorf("%w: invitation already used", store.ErrInvalidArgument)
)

const DefaultInvitationTTL = 7 * 24 * time.Hour

// Registrar creates identity credentials and returns the new user id.
type Registrar interface {
	Register(ctx context.Context, email, password, fullName string, role rbac.Role) (string, error)
}

// Accounts mirrors profile changes that the identity provider enforces on its own.
type Accounts interface {
	Unlock(ctx context.Context, userID string) error
	SetRole(ctx context.Context, userID string, role rbac.Role) error
}

// Memberships is the slice of the workspace service used here.
type Memberships interface {
	ListForUser(ctx context.Context, userID string) ([]workspace.Membership, error)
	ListMembers(ctx context.Context, workspaceID string) ([]workspace.Membership, error)
	AddMember(ctx context.Context, workspaceID, userID string, role rbac.Role) error
}

type Service struct {
	repo        Repository
	policy      *rbac.Policy
	memberships Memberships
	registrar   Registrar
	accounts    Accounts
	activity    *audit.Service
	clock       func() time.Time
}

type Deps struct {
	Policy      *rbac.Policy
	Memberships Memberships
	Registrar   Registrar
	Accounts    Accounts
	Activity    *audit.Service
}

// NewService returns the users service. A nil repo yields ErrNotConfigured from every call.
func NewService(repo Repository, deps Deps) *Service {
	return &Service{
		repo:        repo,
		policy:      deps.Policy,
		memberships: deps.Memberships,
		registrar:   deps.Registrar,
		accounts:    deps.Accounts,
		activity:    deps.Activity,
		clock:       time.Now,
	}
}

// SetRegistrar wires the identity provider after construction; the two depend on each other.
func (s *Service) SetRegistrar(r Registrar) { s.registrar = r }

// SetAccounts wires the identity provider's account controls after construction.
func (s *Service) SetAccounts(a Accounts) { s.accounts = a }

func (s *Service) List(ctx context.Context, f ListFilter) ([]UserProfile, error) {
	if s.repo == nil {
		return nil, store.ErrNotConfigured
	}
	if err := s.normalize(ctx, &f); err != nil {
		return nil, err
	}
	if f.ids != nil && len(f.ids) == 0 {
		return []UserProfile{}, nil
	}
	return s.repo.ListProfiles(ctx, f)
}

func (s *Service) Stats(ctx context.Context, workspaceID string) (Stats, error) {
	if s.repo == nil {
		return Stats{}, store.ErrNotConfigured
	}
	f := ListFilter{WorkspaceID: workspaceID}
	if err := s.normalize(ctx, &f); err != nil {
		return Stats{}, err
	}
	if f.ids != nil && len(f.ids) == 0 {
		return Stats{}, nil
	}
	return s.repo.Stats(ctx, f, s.clock().UTC())
}

func (s *Service) normalize(ctx context.Context, f *ListFilter) error {
	f.Search = strings.TrimSpace(f.Search)
	if err := validate.Struct(f); err != nil {
		return err
	}
	if f.Limit == 0 {
		f.Limit = 50
	}
	if f.WorkspaceID != "" && s.memberships != nil {
		ms, err := s.memberships.ListMembers(ctx, f.WorkspaceID)
		if err != nil {
			return err
		}
		f.ids = make([]string, 0, len(ms))
		for _, m := range ms {
			f.ids = append(f.ids, m.UserID)
		}
	}
	return nil
}

// Get returns the profile with its grants and workspace memberships.
func (s *Service) Get(ctx context.Context, id string) (UserProfile, error) {
	if s.repo == nil {
		return UserProfile{}, store.ErrNotConfigured
	}
	if id == "" {
		return UserProfile{}, store.ErrInvalidArgument
	}
	p, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		return UserProfile{}, err
	}
	if s.memberships != nil {
		ms, err := s.memberships.ListForUser(ctx, id)
		if err != nil {
			return UserProfile{}, err
		}
		p.Memberships = ms
	}
	return p, nil
}

func (s *Service) HasAnyUser(ctx context.Context) (bool, error) {
	if s.repo == nil {
		return false, store.ErrNotConfigured
	}
	n, err := s.repo.CountProfiles(ctx)
	return n > 0, err
}

// UpdateRole changes the platform role. Only a super admin may grant or remove super_admin.
func (s *Service) UpdateRole(ctx context.Context, id, role string) (UserProfile, error) {
	if s.repo == nil {
		return UserProfile{}, store.ErrNotConfigured
	}
	next, err := rbac.ParseRole(role)
	if err != nil {
		return UserProfile{}, fmt.Errorf("%w: %v", store.ErrInvalidArgument, err)
	}
	current, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		return UserProfile{}, err
	}
	if (next == rbac.RoleSuperAdmin || current.Role == rbac.RoleSuperAdmin) && !callerIsSuperAdmin(ctx) {
		return UserProfile{}, rbac.ErrForbidden
	}
	if err := s.repo.UpdateRole(ctx, id, next, s.clock().UTC()); err != nil {
		return UserProfile{}, err
	}
	if s.accounts != nil {
		if err := s.accounts.SetRole(ctx, id, next); err != nil {
			logger.From(ctx).Warn("identity role not synced", "user_id", id, "err", err)
		}
	}
	s.activity.Record(ctx, audit.Event{
		Type:       audit.EventRoleChanged,
		TargetType: "user",
		TargetID:   id,
		Metadata:   map[string]string{"from": string(current.Role), "to": string(next)},
	})
	return s.Get(ctx, id)
}

// SetActive toggles activation. Users are deactivated, never deleted.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (UserProfile, error) {
	if s.repo == nil {
		return UserProfile{}, store.ErrNotConfigured
	}
	if caller, _ := auth.UserID(ctx); caller == id && !active {
		return UserProfile{}, fmt.Errorf("%w: cannot deactivate yourself", store.ErrInvalidArgument)
	}
	if err := s.repo.SetActive(ctx, id, active, s.clock().UTC()); err != nil {
		return UserProfile{}, err
	}
	s.activity.Record(ctx, audit.Event{
		Type:       audit.EventActivationChanged,
		TargetType: "user",
		TargetID:   id,
		Metadata:   map[string]string{"active": fmt.Sprint(active)},
	})
	return s.Get(ctx, id)
}

func (s *Service) LockUntil(ctx context.Context, id string, until time.Time) (UserProfile, error) {
	if s.repo == nil {
		return UserProfile{}, store.ErrNotConfigured
	}
	u := until.UTC()
	if err := s.repo.SetLockedUntil(ctx, id, &u, s.clock().UTC()); err != nil {
		return UserProfile{}, err
	}
	s.activity.Record(ctx, audit.Event{
		Type:       audit.EventAccountLocked,
		TargetType: "user",
		TargetID:   id,
		Metadata:   map[string]string{"until": u.Format(time.RFC3339)},
	})
	return s.Get(ctx, id)
}

func (s *Service) Unlock(ctx context.Context, id string) (UserProfile, error) {
	if s.repo == nil {
		return UserProfile{}, store.ErrNotConfigured
	}
	if err := s.repo.SetLockedUntil(ctx, id, nil, s.clock().UTC()); err != nil {
		return UserProfile{}, err
	}
	if s.accounts != nil {
		if err := s.accounts.Unlock(ctx, id); err != nil {
			return UserProfile{}, fmt.Errorf("clear sign-in lock: %w", err)
		}
	}
	s.activity.Record(ctx, audit.Event{Type: audit.EventUnlocked, TargetType: "user", TargetID: id})
	return s.Get(ctx, id)
}

func (s *Service) GrantPermission(ctx context.Context, id, permission string) (UserProfile, error) {
	if s.repo == nil {
		return UserProfile{}, store.ErrNotConfigured
	}
	if err := s.policy.CanGrant(permission); err != nil {
		return UserProfile{}, fmt.Errorf("%w: %v", store.ErrInvalidArgument, err)
	}
	grantedBy, _ := auth.UserID(ctx)
	if err := s.repo.GrantPermission(ctx, id, permission, grantedBy, s.clock().UTC()); err != nil {
		return UserProfile{}, err
	}
	s.activity.Record(ctx, audit.Event{
		Type:       audit.EventPermissionGranted,
		TargetType: "user",
		TargetID:   id,
		Message:    permission,
	})
	return s.Get(ctx, id)
}

func (s *Service) RevokePermission(ctx context.Context, id, permission string) (UserProfile, error) {
	if s.repo == nil {
		return UserProfile{}, store.ErrNotConfigured
	}
	if err := s.repo.RevokePermission(ctx, id, permission); err != nil {
		return UserProfile{}, err
	}
	s.activity.Record(ctx, audit.Event{
		Type:       audit.EventPermissionRevoked,
		TargetType: "user",
		TargetID:   id,
		Message:    permission,
	})
	return s.Get(ctx, id)
}

func (s *Service) TouchLogin(ctx context.Context, id string) error {
	if s.repo == nil {
		return store.ErrNotConfigured
	}
	return s.repo.TouchLogin(ctx, id, s.clock().UTC())
}

// SignUp registers the very first user as super_admin. Afterwards sign-up is invitation only.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (UserProfile, error) {
	if s.repo == nil {
		return UserProfile{}, store.ErrNotConfigured
	}
	if err := validate.Struct(req); err != nil {
		return UserProfile{}, err
	}
	exists, err := s.HasAnyUser(ctx)
	if err != nil {
		return UserProfile{}, err
	}
	if exists {
		return UserProfile{}, ErrSignUpClosed
	}
	p, err := s.register(ctx, req.Email, req.Password, req.FullName, rbac.RoleSuperAdmin)
	if err != nil {
		return UserProfile{}, err
	}
	s.activity.Record(ctx, audit.Event{Type: audit.EventBootstrap, ActorUserID: p.ID, TargetType: "user", TargetID: p.ID})
	return p, nil
}

func (s *Service) register(ctx context.Context, email, password, fullName string, role rbac.Role) (UserProfile, error) {
	if s.registrar == nil {
		return UserProfile{}, errors.New("users: no registrar configured")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	id, err := s.registrar.Register(ctx, email, password, fullName, role)
	if err != nil {
		return UserProfile{}, err
	}
	now := s.clock().UTC()
	p := UserProfile{
		ID:        id,
		Email:     email,
		FullName:  strings.TrimSpace(fullName),
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertProfile(ctx, p); err != nil {
		return UserProfile{}, err
	}
	return s.Get(ctx, id)
}

// CreateInvitation stores a single-use token. Only a super admin may invite another super admin.
func (s *Service) CreateInvitation(ctx context.Context, req InviteRequest) (Invitation, error) {
	if s.repo == nil {
		return Invitation{}, store.ErrNotConfigured
	}
	if err := validate.Struct(req); err != nil {
		return Invitation{}, err
	}
	role := rbac.Role(req.Role)
	if role == rbac.RoleSuperAdmin && !callerIsSuperAdmin(ctx) {
		return Invitation{}, rbac.ErrForbidden
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}
	invitedBy, _ := auth.UserID(ctx)
	now := s.clock().UTC()
	inv := Invitation{
		ID:          uuid.NewString(),
		Token:       newToken(),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Role:        role,
		WorkspaceID: req.WorkspaceID,
		InvitedBy:   invitedBy,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
	if err := s.repo.InsertInvitation(ctx, inv); err != nil {
		return Invitation{}, err
	}
	s.activity.Record(ctx, audit.Event{
		Type:        audit.EventInvitationCreated,
		WorkspaceID: inv.WorkspaceID,
		TargetType:  "invitation",
		TargetID:    inv.ID,
		Message:     inv.Email,
		Metadata:    map[string]string{"role": string(role)},
	})
	return inv, nil
}

// AcceptInvitation creates credentials, profile and membership for a valid token.
func (s *Service) AcceptInvitation(ctx context.Context, req AcceptRequest) (UserProfile, error) {
	if s.repo == nil {
		return UserProfile{}, store.ErrNotConfigured
	}
	if err := validate.Struct(req); err != nil {
		return UserProfile{}, err
	}
	inv, err := s.repo.GetInvitationByToken(ctx, req.Token)
	if err != nil {
		return UserProfile{}, err
	}
	now := s.clock().UTC()
	if inv.AcceptedAt != nil {
		return UserProfile{}, ErrInvitationAccepted
	}
	if !now.Before(inv.ExpiresAt) {
		return UserProfile{}, ErrInvitationExpired
	}

	// Email uniqueness on credentials makes a second registration for the same token fail.
	p, err := s.register(ctx, inv.Email, req.Password, req.FullName, inv.Role)
	if err != nil {
		return UserProfile{}, err
	}
	if err := s.repo.MarkInvitationAccepted(ctx, inv.ID, now); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return UserProfile{}, ErrInvitationAccepted
		}
		return UserProfile{}, err
	}
	if inv.WorkspaceID != "" && s.memberships != nil {
		if err := s.memberships.AddMember(ctx, inv.WorkspaceID, p.ID, inv.Role); err != nil {
			return UserProfile{}, err
		}
		if p, err = s.Get(ctx, p.ID); err != nil {
			return UserProfile{}, err
		}
	}
	s.activity.Record(ctx, audit.Event{
		Type:        audit.EventInvitationAccepted,
		WorkspaceID: inv.WorkspaceID,
		ActorUserID: p.ID,
		TargetType:  "invitation",
		TargetID:    inv.ID,
	})
	return p, nil
}

func (s *Service) ListInvitations(ctx context.Context, workspaceID string) ([]Invitation, error) {
	if s.repo == nil {
		return nil, store.ErrNotConfigured
	}
	return s.repo.ListInvitations(ctx, workspaceID)
}

func callerIsSuperAdmin(ctx context.Context) bool {
	r, err := auth.Role(ctx)
	return err == nil && rbac.IsSuperAdmin(rbac.Role(r))
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}
