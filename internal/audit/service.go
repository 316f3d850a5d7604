package audit

import (
	"context"
	"errors"
	"time"

	"crm-platform/internal/auth"
	"crm-platform/internal/store"
	"crm-platform/pkg/logger"

	"github.com/google/uuid"
)

// Repository is the persistence contract for activity events.
// It MUST be append-only; no Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, workspaceID string, limit int) ([]Event, error)
}

// Service records activity. Callers treat recording as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

const maxListLimit = 500

// Append validates and stores e, filling ID, timestamp, actor and IP from ctx when absent.
func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return store.ErrNotConfigured
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.ActorUserID == "" {
		e.ActorUserID, _ = auth.UserID(ctx)
	}
	if e.ActorRole == "" {
		e.ActorRole, _ = auth.Role(ctx)
	}
	if e.WorkspaceID == "" {
		e.WorkspaceID, _ = auth.WorkspaceID(ctx)
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIPFromContext(ctx)
	}
	return s.repo.Append(ctx, e)
}

// Record appends e and logs instead of returning failures.
func (s *Service) Record(ctx context.Context, e Event) {
	if s == nil || s.repo == nil {
		return
	}
	if err := s.Append(ctx, e); err != nil {
		logger.From(ctx).Warn("activity record failed", "type", string(e.Type), "err", err)
	}
}

// List returns the newest events of a workspace; an empty workspaceID lists all (super admin).
func (s *Service) List(ctx context.Context, workspaceID string, limit int) ([]Event, error) {
	if s == nil || s.repo == nil {
		return nil, store.ErrNotConfigured
	}
	if limit <= 0 || limit > maxListLimit {
		limit = 50
	}
	return s.repo.List(ctx, workspaceID, limit)
}
