package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"crm-platform/internal/auth"
	"crm-platform/internal/config"
	"crm-platform/internal/rbac"
	"crm-platform/internal/store"

	"golang.org/x/crypto/bcrypt"
)

func newLocal(t *testing.T, onLock LockoutHook) *Local {
	t.Helper()
	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		JWTIssuer:       "crm",
		JWTAudience:     "crm",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return NewLocal(LocalOptions{
		Credentials:  NewMemoryCredentials(),
		Tokens:       m,
		Throttle:     NewMemoryThrottle(ThrottleLimits{MaxAttempts: 3, LockDuration: time.Minute}),
		LockDuration: time.Minute,
		OnLockout:    onLock,
		BcryptCost:   bcrypt.MinCost,
	})
}

func TestSignUpAndSignIn(t *testing.T) {
	l := newLocal(t, nil)
	ctx := context.Background()

	u, err := l.SignUp(ctx, " Ada@Example.com ", "password1", Metadata{FullName: "Ada", Role: "admin"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if u.Email != "ada@example.com" || u.RoleOf() != rbac.RoleAdmin {
		t.Fatalf("unexpected user %+v", u)
	}

	var events []EventType
	unsubscribe := l.OnAuthStateChange(func(ctx context.Context, e Event) { events = append(events, e.Type) })
	defer unsubscribe()

	sess, signedIn, err := l.SignInWithPassword(ctx, "ada@example.com", "password1")
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	if signedIn.ID != u.ID || sess.AccessToken == "" || sess.RefreshToken == "" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if len(events) != 1 || events[0] != EventSignedIn {
		t.Fatalf("expected signed_in event, got %v", events)
	}

	got, err := l.GetUser(ctx, sess.AccessToken)
	if err != nil || got.ID != u.ID {
		t.Fatalf("get user: %+v %v", got, err)
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	l := newLocal(t, nil)
	ctx := context.Background()
	if _, err := l.SignUp(ctx, "a@example.com", "password1", Metadata{}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := l.SignUp(ctx, "A@example.com", "password1", Metadata{}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := l.SignUp(ctx, "b@example.com", "short", Metadata{}); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("expected weak password rejected, got %v", err)
	}
}

func TestSignOut_RevokesTokens(t *testing.T) {
	l := newLocal(t, nil)
	ctx := context.Background()
	_, _ = l.SignUp(ctx, "a@example.com", "password1", Metadata{})
	sess, _, err := l.SignInWithPassword(ctx, "a@example.com", "password1")
	if err != nil {
		t.Fatalf("signin: %v", err)
	}

	if err := l.SignOut(ctx, sess.AccessToken); err != nil {
		t.Fatalf("signout: %v", err)
	}
	if _, err := l.GetUser(ctx, sess.AccessToken); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after sign-out, got %v", err)
	}
	if _, _, err := l.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected refresh rejected after sign-out, got %v", err)
	}
}

func TestRefresh_Rotates(t *testing.T) {
	l := newLocal(t, nil)
	ctx := context.Background()
	_, _ = l.SignUp(ctx, "a@example.com", "password1", Metadata{})
	first, _, _ := l.SignInWithPassword(ctx, "a@example.com", "password1")

	second, _, err := l.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("expected a new session id")
	}
	if _, err := l.GetUser(ctx, first.AccessToken); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected old access token revoked, got %v", err)
	}
	if _, err := l.GetUser(ctx, second.AccessToken); err != nil {
		t.Fatalf("new access token: %v", err)
	}
}

func TestIssueForWorkspace(t *testing.T) {
	l := newLocal(t, nil)
	ctx := context.Background()
	_, _ = l.SignUp(ctx, "a@example.com", "password1", Metadata{})
	sess, _, _ := l.SignInWithPassword(ctx, "a@example.com", "password1")

	next, err := l.IssueForWorkspace(ctx, sess.AccessToken, "ws-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	u, err := l.GetUser(ctx, next.AccessToken)
	if err != nil || u.TokenWorkspaceID != "ws-1" {
		t.Fatalf("expected workspace bound to token, got %+v %v", u, err)
	}
}

func TestSignIn_LocksAfterRepeatedFailures(t *testing.T) {
	var lockedUser string
	l := newLocal(t, func(ctx context.Context, userID string, until time.Time) { lockedUser = userID })
	ctx := context.Background()
	u, _ := l.SignUp(ctx, "a@example.com", "password1", Metadata{})

	for i := 0; i < 2; i++ {
		if _, _, err := l.SignInWithPassword(ctx, "a@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i, err)
		}
	}
	if _, _, err := l.SignInWithPassword(ctx, "a@example.com", "wrong-pass"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected lock on third failure, got %v", err)
	}
	if lockedUser != u.ID {
		t.Fatalf("expected lockout hook for %s, got %q", u.ID, lockedUser)
	}
	if _, _, err := l.SignInWithPassword(ctx, "a@example.com", "password1"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected locked even with the right password, got %v", err)
	}
}

func TestGetUser_RejectsGarbage(t *testing.T) {
	l := newLocal(t, nil)
	if _, err := l.GetUser(context.Background(), "not-a-token"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := l.GetUser(context.Background(), ""); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession for empty token, got %v", err)
	}
}

func TestNotConfigured(t *testing.T) {
	l := NewLocal(LocalOptions{})
	if _, _, err := l.SignInWithPassword(context.Background(), "a@example.com", "x"); !errors.Is(err, store.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	l := newLocal(t, nil)
	ctx := context.Background()
	if _, err := l.SignUp(ctx, "ada@example.com", "password1", Metadata{FullName: "Ada"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	sess, _, err := l.SignInWithPassword(ctx, "ada@example.com", "password1")
	if err != nil {
		t.Fatalf("signin: %v", err)
	}

	if _, err := l.ChangePassword(ctx, sess.AccessToken, "wrong-current", "password2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := l.ChangePassword(ctx, sess.AccessToken, "password1", "short"); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := l.ChangePassword(ctx, "", "password1", "password2"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected no session, got %v", err)
	}

	u, err := l.ChangePassword(ctx, sess.AccessToken, "password1", "password2")
	if err != nil {
		t.Fatalf("change: %v", err)
	}
	if u.Email != "ada@example.com" {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, _, err := l.SignInWithPassword(ctx, "ada@example.com", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, _, err := l.SignInWithPassword(ctx, "ada@example.com", "password2"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestUnlock_ClearsThrottleLock(t *testing.T) {
	l := newLocal(t, nil)
	ctx := context.Background()
	u, _ := l.SignUp(ctx, "a@example.com", "password1", Metadata{})

	for i := 0; i < 3; i++ {
		_, _, _ = l.SignInWithPassword(ctx, "a@example.com", "wrong-pass")
	}
	if _, _, err := l.SignInWithPassword(ctx, "a@example.com", "password1"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
	if err := l.Unlock(ctx, u.ID); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, _, err := l.SignInWithPassword(ctx, "A@example.com", "password1"); err != nil {
		t.Fatalf("expected sign-in after unlock, got %v", err)
	}
	if err := l.Unlock(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetRole_UpdatesMetadataAndNotifies(t *testing.T) {
	l := newLocal(t, nil)
	ctx := context.Background()
	u, _ := l.SignUp(ctx, "a@example.com", "password1", Metadata{Role: "admin"})

	var updated []string
	unsubscribe := l.OnAuthStateChange(func(ctx context.Context, e Event) {
		if e.Type == EventUserUpdated {
			updated = append(updated, e.User.RoleOf().String())
		}
	})
	defer unsubscribe()

	if err := l.SetRole(ctx, u.ID, rbac.RoleMember); err != nil {
		t.Fatalf("set role: %v", err)
	}
	_, signedIn, err := l.SignInWithPassword(ctx, "a@example.com", "password1")
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	if signedIn.RoleOf() != rbac.RoleMember {
		t.Fatalf("expected demoted metadata role, got %s", signedIn.RoleOf())
	}
	if len(updated) != 1 || updated[0] != "member" {
		t.Fatalf("expected one user_updated event, got %v", updated)
	}
}
