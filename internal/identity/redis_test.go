package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, s
}

func TestRedisSessions_SaveGetRevoke(t *testing.T) {
	client, s := newRedis(t)
	sessions := NewRedisSessions(client)
	ctx := context.Background()

	rec := SessionRecord{ID: "s1", UserID: "u1", WorkspaceID: "w1", ExpiresAt: time.Now().Add(time.Hour)}
	if err := sessions.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := sessions.Get(ctx, "s1")
	if err != nil || got.UserID != "u1" || got.WorkspaceID != "w1" {
		t.Fatalf("get: %+v %v", got, err)
	}

	s.FastForward(2 * time.Hour)
	if _, err := sessions.Get(ctx, "s1"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected expiry, got %v", err)
	}

	_ = sessions.Save(ctx, SessionRecord{ID: "s2", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)})
	if err := sessions.Revoke(ctx, "s2"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := sessions.Get(ctx, "s2"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected revoked, got %v", err)
	}
}

func TestRedisThrottle_LocksAtLimit(t *testing.T) {
	client, s := newRedis(t)
	th := NewRedisThrottle(client, ThrottleLimits{MaxAttempts: 3, LockDuration: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		locked, err := th.RecordFailure(ctx, "email:a")
		if err != nil || locked {
			t.Fatalf("attempt %d: locked=%v err=%v", i, locked, err)
		}
	}
	locked, err := th.RecordFailure(ctx, "email:a")
	if err != nil || !locked {
		t.Fatalf("expected lock at limit, got %v %v", locked, err)
	}
	if ok, _ := th.Locked(ctx, "email:a"); !ok {
		t.Fatalf("expected key locked")
	}

	s.FastForward(2 * time.Minute)
	if ok, _ := th.Locked(ctx, "email:a"); ok {
		t.Fatalf("expected lock to expire")
	}
}

func TestRedisThrottle_Reset(t *testing.T) {
	client, _ := newRedis(t)
	th := NewRedisThrottle(client, ThrottleLimits{MaxAttempts: 2})
	ctx := context.Background()

	_, _ = th.RecordFailure(ctx, "email:b")
	if err := th.Reset(ctx, "email:b"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if locked, _ := th.RecordFailure(ctx, "email:b"); locked {
		t.Fatalf("expected counter reset")
	}
}
