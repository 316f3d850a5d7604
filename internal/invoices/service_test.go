package invoices

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/clients"
	"crm-platform/internal/store"
)

type fixture struct {
	svc      *Service
	events   *audit.MemoryRepo
	clientID string
	now      *time.Time
	ctx      context.Context
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	cs := clients.NewService(clients.NewMemoryRepo(), nil)
	c, err := cs.Create(ctx, "w1", clients.CreateRequest{CompanyName: "Acme"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	events := audit.NewMemoryRepo()
	s := NewService(NewMemoryRepo(), cs, audit.NewService(events))
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return now }
	return fixture{svc: s, events: events, clientID: c.ID, now: &now, ctx: ctx}
}

func (f fixture) invoice(t *testing.T, send bool) Invoice {
	t.Helper()
	inv, err := f.svc.Create(f.ctx, "w1", CreateRequest{ClientID: f.clientID, AmountMinor: 10_000, Currency: "usd", Send: send})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return inv
}

func count(events []audit.Event, typ audit.EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestCreate_Defaults(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, false)
	if inv.Status != StatusDraft || inv.Currency != "USD" || inv.Number == "" {
		t.Fatalf("unexpected invoice %+v", inv)
	}
	if want := f.now.AddDate(0, 0, 30); !inv.DueAt.Equal(want) {
		t.Fatalf("expected due %v, got %v", want, inv.DueAt)
	}
}

func TestCreate_UnknownClientRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(f.ctx, "w1", CreateRequest{ClientID: "00000000-0000-0000-0000-000000000001", AmountMinor: 1, Currency: "EUR"})
	if !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestCreate_DuplicateNumberConflicts(t *testing.T) {
	f := newFixture(t)
	req := CreateRequest{ClientID: f.clientID, Number: "INV-1", AmountMinor: 5, Currency: "EUR"}
	if _, err := f.svc.Create(f.ctx, "w1", req); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Create(f.ctx, "w1", req); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestMarkPaid_Idempotent(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, true)

	paid, err := f.svc.MarkPaid(f.ctx, "w1", inv.ID, MarkPaidRequest{PaymentRef: "tx-1"})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != StatusPaid || paid.PaidAt == nil || paid.PaymentRef != "tx-1" {
		t.Fatalf("unexpected invoice %+v", paid)
	}

	*f.now = f.now.Add(time.Hour)
	again, err := f.svc.MarkPaid(f.ctx, "w1", inv.ID, MarkPaidRequest{PaymentRef: "tx-2"})
	if err != nil {
		t.Fatalf("repeat mark paid: %v", err)
	}
	if again.PaymentRef != "tx-1" || !again.PaidAt.Equal(*paid.PaidAt) {
		t.Fatalf("repeat must not change the invoice: %+v", again)
	}
	if got := count(f.events.Events(), audit.EventInvoicePaid); got != 1 {
		t.Fatalf("expected one paid event, got %d", got)
	}
}

func TestMarkPaid_ConcurrentCallsPayOnce(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, true)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.MarkPaid(f.ctx, "w1", inv.ID, MarkPaidRequest{})
		}()
	}
	wg.Wait()
	if got := count(f.events.Events(), audit.EventInvoicePaid); got != 1 {
		t.Fatalf("expected exactly one paid event, got %d", got)
	}
}

func TestVoid(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, false)
	if v, err := f.svc.Void(f.ctx, "w1", inv.ID); err != nil || v.Status != StatusVoid {
		t.Fatalf("void: %+v %v", v, err)
	}
	if _, err := f.svc.MarkPaid(f.ctx, "w1", inv.ID, MarkPaidRequest{}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("void invoice cannot be paid, got %v", err)
	}

	paid := f.invoice(t, true)
	_, _ = f.svc.MarkPaid(f.ctx, "w1", paid.ID, MarkPaidRequest{})
	if _, err := f.svc.Void(f.ctx, "w1", paid.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("paid invoice cannot be voided, got %v", err)
	}
}

func TestOverdueIsDerivedAndStats(t *testing.T) {
	f := newFixture(t)
	sent := f.invoice(t, true)
	f.invoice(t, false)
	paid := f.invoice(t, true)
	_, _ = f.svc.MarkPaid(f.ctx, "w1", paid.ID, MarkPaidRequest{})

	*f.now = f.now.AddDate(0, 0, 31)
	got, _ := f.svc.Get(f.ctx, "w1", sent.ID)
	if got.Status != StatusOverdue {
		t.Fatalf("expected overdue, got %s", got.Status)
	}
	list, _ := f.svc.List(f.ctx, ListFilter{WorkspaceID: "w1", Status: "overdue"})
	if len(list) != 1 || list[0].ID != sent.ID {
		t.Fatalf("unexpected overdue list %+v", list)
	}

	st, err := f.svc.Stats(f.ctx, "w1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 3 || st.Drafts != 1 || st.Overdue != 1 || st.PaidMinor != 10_000 || st.OutstandingMinor != 10_000 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestSend(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, false)
	got, err := f.svc.Send(f.ctx, "w1", inv.ID)
	if err != nil || got.Status != StatusSent {
		t.Fatalf("send: %+v %v", got, err)
	}
}

func TestNotConfigured(t *testing.T) {
	s := NewService(nil, nil, nil)
	if _, err := s.MarkPaid(context.Background(), "w1", "i1", MarkPaidRequest{}); !errors.Is(err, store.ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}
