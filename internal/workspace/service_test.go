package workspace

import (
	"context"
	"errors"
	"testing"

	"crm-platform/internal/audit"
	"crm-platform/internal/rbac"
	"crm-platform/internal/store"
)

func TestSlugify(t *testing.T) {
	if got := Slugify("  Acme & Sons, Ltd. "); got != "acme-sons-ltd" {
		t.Fatalf("unexpected slug %q", got)
	}
}

func TestCreate_AddsCreatorAsAdmin(t *testing.T) {
	ctx := context.Background()
	activity := audit.NewMemoryRepo()
	svc := NewService(NewMemoryRepo(), audit.NewService(activity))

	w, err := svc.Create(ctx, "u1", CreateRequest{Name: "Acme Agency"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.Slug != "acme-agency" {
		t.Fatalf("unexpected slug %q", w.Slug)
	}
	role, ok, err := svc.IsMember(ctx, w.ID, "u1")
	if err != nil || !ok || role != rbac.RoleAdmin {
		t.Fatalf("expected creator admin membership, got %q %v %v", role, ok, err)
	}
	if len(activity.Events()) != 1 {
		t.Fatalf("expected workspace.created event")
	}
}

func TestCreate_DuplicateSlugConflicts(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), nil)
	if _, err := svc.Create(ctx, "", CreateRequest{Name: "Acme"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, "", CreateRequest{Name: "ACME"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAddAndRemoveMember(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), nil)
	w, _ := svc.Create(ctx, "", CreateRequest{Name: "Beta"})

	if err := svc.AddMember(ctx, w.ID, "u2", rbac.RoleMember); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.AddMember(ctx, w.ID, "u2", rbac.RoleAdmin); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	ms, _ := svc.ListMembers(ctx, w.ID)
	if len(ms) != 1 || ms[0].Role != rbac.RoleAdmin || ms[0].WorkspaceName != "Beta" {
		t.Fatalf("unexpected members %+v", ms)
	}
	if err := svc.RemoveMember(ctx, w.ID, "u2"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := svc.IsMember(ctx, w.ID, "u2"); ok {
		t.Fatalf("expected membership removed")
	}
}

func TestNotConfigured(t *testing.T) {
	svc := NewService(nil, nil)
	if _, err := svc.ListForUser(context.Background(), "u1"); !errors.Is(err, store.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
