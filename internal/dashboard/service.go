// Package dashboard aggregates the per-module statistics of a workspace.
package dashboard

import (
	"context"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/clients"
	"crm-platform/internal/invoices"
	"crm-platform/internal/projects"
	"crm-platform/internal/store"
	"crm-platform/internal/users"

	"golang.org/x/sync/errgroup"
)

type UserStats interface {
	Stats(ctx context.Context, workspaceID string) (users.Stats, error)
}

type ClientStats interface {
	Stats(ctx context.Context, workspaceID string) (clients.Stats, error)
}

type ProjectStats interface {
	Stats(ctx context.Context, workspaceID string) (projects.Stats, error)
}

type InvoiceStats interface {
	Stats(ctx context.Context, workspaceID string) (invoices.Stats, error)
}

type ActivityLister interface {
	List(ctx context.Context, workspaceID string, limit int) ([]audit.Event, error)
}

// Sources are the services a Summary reads. Activity may be nil.
type Sources struct {
	Users    UserStats
	Clients  ClientStats
	Projects ProjectStats
	Invoices InvoiceStats
	Activity ActivityLister
}

const recentActivityLimit = 10

type Service struct {
	src   Sources
	clock func() time.Time
}

func NewService(src Sources) *Service { return &Service{src: src, clock: time.Now} }

// Summary fetches every card concurrently. The first failing source cancels the rest
// and its error is returned.
func (s *Service) Summary(ctx context.Context, workspaceID string) (Summary, error) {
	if workspaceID == "" {
		return Summary{}, store.ErrInvalidArgument
	}
	if s.src.Users == nil || s.src.Clients == nil || s.src.Projects == nil || s.src.Invoices == nil {
		return Summary{}, store.ErrNotConfigured
	}

	out := Summary{WorkspaceID: workspaceID, RecentActivity: []audit.Event{}}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Users, err = s.src.Users.Stats(gctx, workspaceID)
		return err
	})
	g.Go(func() (err error) {
		out.Clients, err = s.src.Clients.Stats(gctx, workspaceID)
		return err
	})
	g.Go(func() (err error) {
		out.Projects, err = s.src.Projects.Stats(gctx, workspaceID)
		return err
	})
	g.Go(func() (err error) {
		out.Invoices, err = s.src.Invoices.Stats(gctx, workspaceID)
		return err
	})
	if s.src.Activity != nil {
		g.Go(func() error {
			events, err := s.src.Activity.List(gctx, workspaceID, recentActivityLimit)
			if err != nil {
				return err
			}
			out.RecentActivity = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	if out.Clients.Total > 0 {
		out.ClientConversionRate = float64(out.Clients.Active) / float64(out.Clients.Total)
	}
	if billed := out.Invoices.PaidMinor + out.Invoices.OutstandingMinor; billed > 0 {
		out.CollectionRate = float64(out.Invoices.PaidMinor) / float64(billed)
	}
	out.GeneratedAt = s.clock().UTC()
	return out, nil
}
