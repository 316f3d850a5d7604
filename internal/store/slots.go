package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSlots caps concurrent work per key across processes. The TTL releases slots
// held by a process that died.
type RedisSlots struct {
	rdb    redis.UniversalClient
	prefix string
	limit  int
	ttl    time.Duration
}

func NewRedisSlots(rdb redis.UniversalClient, prefix string, limit int, ttl time.Duration) *RedisSlots {
	if limit <= 0 {
		limit = 1
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisSlots{rdb: rdb, prefix: prefix, limit: limit, ttl: ttl}
}

var acquireSlotScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return 0
end
return 1
`)

var releaseSlotScript = redis.NewScript(`
local current = redis.call('DECR', KEYS[1])
if current <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// Acquire reports whether a slot for key was taken.
func (s *RedisSlots) Acquire(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("%w: slot key required", ErrInvalidArgument)
	}
	res, err := acquireSlotScript.Run(ctx, s.rdb, []string{s.prefix + key}, s.limit, s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisSlots) Release(ctx context.Context, key string) error {
	return releaseSlotScript.Run(ctx, s.rdb, []string{s.prefix + key}).Err()
}
