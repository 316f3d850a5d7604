package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle counts failed sign-ins per key and locks the key once the limit is reached.
type Throttle interface {
	Locked(ctx context.Context, key string) (bool, error)
	// RecordFailure returns true when this failure caused the lock.
	RecordFailure(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

type ThrottleLimits struct {
	MaxAttempts int
	// Window bounds how long failures are remembered.
	Window       time.Duration
	LockDuration time.Duration
}

func (l ThrottleLimits) withDefaults() ThrottleLimits {
	if l.MaxAttempts <= 0 {
		l.MaxAttempts = 5
	}
	if l.LockDuration <= 0 {
		l.LockDuration = 15 * time.Minute
	}
	if l.Window <= 0 {
		l.Window = l.LockDuration
	}
	return l
}

type MemoryThrottle struct {
	limits ThrottleLimits
	clock  func() time.Time

	mu       sync.Mutex
	failures map[string][]time.Time
	locked   map[string]time.Time
}

func NewMemoryThrottle(limits ThrottleLimits) *MemoryThrottle {
	return &MemoryThrottle{
		limits:   limits.withDefaults(),
		clock:    time.Now,
		failures: map[string][]time.Time{},
		locked:   map[string]time.Time{},
	}
}

func (m *MemoryThrottle) Locked(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.locked[key]
	if !ok {
		return false, nil
	}
	if !m.clock().Before(until) {
		delete(m.locked, key)
		return false, nil
	}
	return true, nil
}

func (m *MemoryThrottle) RecordFailure(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	cutoff := now.Add(-m.limits.Window)
	kept := m.failures[key][:0]
	for _, t := range m.failures[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	if len(kept) >= m.limits.MaxAttempts {
		delete(m.failures, key)
		m.locked[key] = now.Add(m.limits.LockDuration)
		return true, nil
	}
	m.failures[key] = kept
	return false, nil
}

func (m *MemoryThrottle) Reset(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, key)
	delete(m.locked, key)
	return nil
}

var recordFailureScript = redis.NewScript(`
-- KEYS[1] = failure counter key
-- KEYS[2] = lock key
-- ARGV[1] = max attempts (int)
-- ARGV[2] = window_ms (int)
-- ARGV[3] = lock_ms (int)
--
-- Returns:
--  1 if this failure locked the key
--  0 otherwise
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
elseif redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end

if current >= tonumber(ARGV[1]) then
  redis.call('SET', KEYS[2], '1', 'PX', ARGV[3])
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)

// RedisThrottle shares failure counters across API replicas.
type RedisThrottle struct {
	client *redis.Client
	limits ThrottleLimits
	prefix string
}

func NewRedisThrottle(client *redis.Client, limits ThrottleLimits) *RedisThrottle {
	return &RedisThrottle{client: client, limits: limits.withDefaults(), prefix: "crm:signin:"}
}

func (r *RedisThrottle) keys(key string) []string {
	return []string{r.prefix + "fail:" + key, r.prefix + "lock:" + key}
}

func (r *RedisThrottle) Locked(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.keys(key)[1]).Result()
	if err != nil {
		return false, fmt.Errorf("throttle lookup: %w", err)
	}
	return n == 1, nil
}

func (r *RedisThrottle) RecordFailure(ctx context.Context, key string) (bool, error) {
	res, err := recordFailureScript.Run(ctx, r.client, r.keys(key),
		r.limits.MaxAttempts, r.limits.Window.Milliseconds(), r.limits.LockDuration.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("throttle record: %w", err)
	}
	return res == 1, nil
}

func (r *RedisThrottle) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.keys(key)...).Err()
}
