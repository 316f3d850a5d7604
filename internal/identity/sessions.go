package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionRecord is the server side of a token pair. Deleting it revokes both tokens.
type SessionRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type SessionStore interface {
	Save(ctx context.Context, rec SessionRecord) error
	// Get returns ErrNoSession when the record is missing or expired.
	Get(ctx context.Context, id string) (SessionRecord, error)
	Revoke(ctx context.Context, id string) error
}

type MemorySessions struct {
	mu    sync.Mutex
	recs  map[string]SessionRecord
	clock func() time.Time
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{recs: map[string]SessionRecord{}, clock: time.Now}
}

func (m *MemorySessions) Save(ctx context.Context, rec SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.ID] = rec
	return nil
}

func (m *MemorySessions) Get(ctx context.Context, id string) (SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok || !m.clock().Before(rec.ExpiresAt) {
		delete(m.recs, id)
		return SessionRecord{}, ErrNoSession
	}
	return rec, nil
}

func (m *MemorySessions) Revoke(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, id)
	return nil
}

// RedisSessions keeps one JSON value per session with a TTL matching the refresh token.
type RedisSessions struct {
	client *redis.Client
	prefix string
}

func NewRedisSessions(client *redis.Client) *RedisSessions {
	return &RedisSessions{client: client, prefix: "crm:session:"}
}

func (r *RedisSessions) key(id string) string { return r.prefix + id }

func (r *RedisSessions) Save(ctx context.Context, rec SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return ErrNoSession
	}
	if err := r.client.Set(ctx, r.key(rec.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisSessions) Get(ctx context.Context, id string) (SessionRecord, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return SessionRecord{}, ErrNoSession
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("lookup session: %w", err)
	}
	var rec SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return SessionRecord{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return rec, nil
}

func (r *RedisSessions) Revoke(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
