// Package clients manages the companies a workspace works for.
package clients

import (
	"context"
	"strings"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/store"
	"crm-platform/pkg/validate"

	"github.com/google/uuid"
)

type Service struct {
	repo     Repository
	activity *audit.Service
	clock    func() time.Time
}

// NewService returns the clients service. A nil repo yields ErrNotConfigured from every call.
func NewService(repo Repository, activity *audit.Service) *Service {
	return &Service{repo: repo, activity: activity, clock: time.Now}
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Client, error) {
	if s.repo == nil {
		return nil, store.ErrNotConfigured
	}
	f.Search = strings.TrimSpace(f.Search)
	if err := validate.Struct(f); err != nil {
		return nil, err
	}
	if f.Limit == 0 {
		f.Limit = 50
	}
	return s.repo.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, workspaceID, id string) (Client, error) {
	if s.repo == nil {
		return Client{}, store.ErrNotConfigured
	}
	if workspaceID == "" || id == "" {
		return Client{}, store.ErrInvalidArgument
	}
	return s.repo.Get(ctx, workspaceID, id)
}

func (s *Service) Create(ctx context.Context, workspaceID string, req CreateRequest) (Client, error) {
	if s.repo == nil {
		return Client{}, store.ErrNotConfigured
	}
	if workspaceID == "" {
		return Client{}, store.ErrInvalidArgument
	}
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		return Client{}, err
	}
	if req.Status == "" {
		req.Status = StatusLead
	}

	now := s.clock().UTC()
	c := Client{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		CompanyName: req.CompanyName,
		ContactName: strings.TrimSpace(req.ContactName),
		Email:       req.Email,
		Phone:       strings.TrimSpace(req.Phone),
		Website:     strings.TrimSpace(req.Website),
		Status:      req.Status,
		Industry:    strings.TrimSpace(req.Industry),
		Notes:       req.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return Client{}, err
	}
	s.record(ctx, c, "created")
	return s.repo.Get(ctx, workspaceID, c.ID)
}

func (s *Service) Update(ctx context.Context, workspaceID, id string, req UpdateRequest) (Client, error) {
	c, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return Client{}, err
	}
	if err := validate.Struct(req); err != nil {
		return Client{}, err
	}
	req.apply(&c)
	c.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, c); err != nil {
		return Client{}, err
	}
	s.record(ctx, c, "updated")
	return s.repo.Get(ctx, workspaceID, id)
}

// Delete fails with ErrConflict while projects or invoices still reference the client.
func (s *Service) Delete(ctx context.Context, workspaceID, id string) error {
	c, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, workspaceID, id); err != nil {
		return err
	}
	s.record(ctx, c, "deleted")
	return nil
}

func (s *Service) Stats(ctx context.Context, workspaceID string) (Stats, error) {
	if s.repo == nil {
		return Stats{}, store.ErrNotConfigured
	}
	if workspaceID == "" {
		return Stats{}, store.ErrInvalidArgument
	}
	return s.repo.Stats(ctx, workspaceID)
}

func (s *Service) record(ctx context.Context, c Client, action string) {
	s.activity.Record(ctx, audit.Event{
		Type:        audit.EventClientChanged,
		WorkspaceID: c.WorkspaceID,
		TargetType:  "client",
		TargetID:    c.ID,
		Message:     c.CompanyName,
		Metadata:    map[string]string{"action": action},
	})
}
