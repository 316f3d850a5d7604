// Package invoices issues client invoices and tracks their payment.
//
// State changes (send, pay, void) run under the invoice's row lock and are idempotent:
// repeating one returns the current invoice without writing.
package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/clients"
	"crm-platform/internal/store"
	"crm-platform/pkg/validate"

	"github.com/google/uuid"
)

var ErrInvalidState = fmt.Errorf("%w: invoice state does not allow this", store.ErrConflict)

const defaultDueDays = 30

// ClientLookup resolves the billed client.
type ClientLookup interface {
	Get(ctx context.Context, workspaceID, id string) (clients.Client, error)
}

type Service struct {
	repo     Repository
	clients  ClientLookup
	activity *audit.Service
	clock    func() time.Time
}

// NewService returns the invoices service. A nil repo yields ErrNotConfigured from every call.
func NewService(repo Repository, clients ClientLookup, activity *audit.Service) *Service {
	return &Service{repo: repo, clients: clients, activity: activity, clock: time.Now}
}

func (s *Service) Create(ctx context.Context, workspaceID string, req CreateRequest) (Invoice, error) {
	if s.repo == nil {
		return Invoice{}, store.ErrNotConfigured
	}
	if workspaceID == "" {
		return Invoice{}, store.ErrInvalidArgument
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Number = strings.TrimSpace(req.Number)
	if err := validate.Struct(req); err != nil {
		return Invoice{}, err
	}
	if s.clients != nil {
		if _, err := s.clients.Get(ctx, workspaceID, req.ClientID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return Invoice{}, fmt.Errorf("%w: unknown client", store.ErrInvalidArgument)
			}
			return Invoice{}, err
		}
	}

	now := s.clock().UTC()
	issued := now
	if req.IssuedAt != nil {
		issued = req.IssuedAt.UTC()
	}
	days := req.DueInDays
	if days == 0 {
		days = defaultDueDays
	}
	id := uuid.NewString()
	number := req.Number
	if number == "" {
		number = fmt.Sprintf("INV-%s-%s", issued.Format("20060102"), strings.ToUpper(id[:6]))
	}
	status := StatusDraft
	if req.Send {
		status = StatusSent
	}
	inv := Invoice{
		ID:          id,
		WorkspaceID: workspaceID,
		ClientID:    req.ClientID,
		ProjectID:   req.ProjectID,
		Number:      number,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Status:      status,
		IssuedAt:    issued,
		DueAt:       issued.AddDate(0, 0, days),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, inv); err != nil {
		return Invoice{}, err
	}
	s.record(ctx, audit.EventInvoiceChanged, inv, "created")
	return s.Get(ctx, workspaceID, id)
}

func (s *Service) Get(ctx context.Context, workspaceID, id string) (Invoice, error) {
	if s.repo == nil {
		return Invoice{}, store.ErrNotConfigured
	}
	if workspaceID == "" || id == "" {
		return Invoice{}, store.ErrInvalidArgument
	}
	inv, err := s.repo.Get(ctx, workspaceID, id)
	if err != nil {
		return Invoice{}, err
	}
	return inv.view(s.clock()), nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Invoice, error) {
	if s.repo == nil {
		return nil, store.ErrNotConfigured
	}
	if err := validate.Struct(f); err != nil {
		return nil, err
	}
	if f.Limit == 0 {
		f.Limit = 50
	}
	now := s.clock()
	out, err := s.repo.List(ctx, f, now)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i] = out[i].view(now)
	}
	return out, nil
}

// Send moves a draft to sent.
func (s *Service) Send(ctx context.Context, workspaceID, id string) (Invoice, error) {
	return s.mutate(ctx, workspaceID, id, "sent", func(inv *Invoice) (bool, error) {
		switch inv.Status {
		case StatusSent:
			return false, nil
		case StatusDraft:
			inv.Status = StatusSent
			return true, nil
		default:
			return false, ErrInvalidState
		}
	})
}

// MarkPaid records payment. Paying a paid invoice returns it unchanged; a void invoice cannot be paid.
func (s *Service) MarkPaid(ctx context.Context, workspaceID, id string, req MarkPaidRequest) (Invoice, error) {
	if err := validate.Struct(req); err != nil {
		return Invoice{}, err
	}
	now := s.clock().UTC()
	paidAt := now
	if req.PaidAt != nil {
		paidAt = req.PaidAt.UTC()
	}
	return s.mutate(ctx, workspaceID, id, "paid", func(inv *Invoice) (bool, error) {
		switch inv.Status {
		case StatusPaid:
			return false, nil
		case StatusVoid:
			return false, ErrInvalidState
		}
		inv.Status = StatusPaid
		inv.PaidAt = &paidAt
		inv.PaymentRef = strings.TrimSpace(req.PaymentRef)
		return true, nil
	})
}

// Void cancels an unpaid invoice.
func (s *Service) Void(ctx context.Context, workspaceID, id string) (Invoice, error) {
	return s.mutate(ctx, workspaceID, id, "void", func(inv *Invoice) (bool, error) {
		switch inv.Status {
		case StatusVoid:
			return false, nil
		case StatusPaid:
			return false, ErrInvalidState
		}
		inv.Status = StatusVoid
		return true, nil
	})
}

func (s *Service) Stats(ctx context.Context, workspaceID string) (Stats, error) {
	if s.repo == nil {
		return Stats{}, store.ErrNotConfigured
	}
	if workspaceID == "" {
		return Stats{}, store.ErrInvalidArgument
	}
	return s.repo.Stats(ctx, workspaceID, s.clock())
}

func (s *Service) mutate(ctx context.Context, workspaceID, id, action string, apply func(inv *Invoice) (bool, error)) (Invoice, error) {
	if s.repo == nil {
		return Invoice{}, store.ErrNotConfigured
	}
	if workspaceID == "" || id == "" {
		return Invoice{}, store.ErrInvalidArgument
	}
	changed := false
	inv, err := s.repo.Mutate(ctx, workspaceID, id, func(inv *Invoice) (bool, error) {
		ok, err := apply(inv)
		if ok {
			inv.UpdatedAt = s.clock().UTC()
		}
		changed = ok
		return ok, err
	})
	if err != nil {
		return Invoice{}, err
	}
	if changed {
		typ := audit.EventInvoiceChanged
		if inv.Status == StatusPaid {
			typ = audit.EventInvoicePaid
		}
		s.record(ctx, typ, inv, action)
	}
	return inv.view(s.clock()), nil
}

func (s *Service) record(ctx context.Context, typ audit.EventType, inv Invoice, action string) {
	s.activity.Record(ctx, audit.Event{
		Type:        typ,
		WorkspaceID: inv.WorkspaceID,
		TargetType:  "invoice",
		TargetID:    inv.ID,
		Message:     inv.Number,
		Metadata: map[string]string{
			"action": action,
			"amount": fmt.Sprintf("%d %s", inv.AmountMinor, inv.Currency),
		},
	})
}
