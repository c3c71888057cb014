package window

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"safereport/internal/ratelimit/models"
)

// allowScript checks and increments in one round trip. A key without a TTL
// (left over from a crash between INCR and PEXPIRE in older deployments)
// gets one assigned.
//
// KEYS[1] counter key, ARGV[1] limit, ARGV[2] window in ms.
// Returns {allowed, count, pttl}.
var allowScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if current >= limit then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
    ttl = tonumber(ARGV[2])
  end
  return {0, current, ttl}
end
local n = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
return {1, n, ttl}
`)

// RedisWindowStore is the shared fixed-window store for multi-instance
// deployments. Expiry is handled by Redis.
type RedisWindowStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisWindowStore(client *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{client: client, now: time.Now}
}

func (s *RedisWindowStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	res, err := allowScript.Run(ctx, s.client, []string{key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected reply length %d", len(res))
	}
	count := int(res[1])
	return &models.Result{
		Allowed:   res[0] == 1,
		Limit:     limit,
		Count:     count,
		Remaining: max(limit-count, 0),
		ResetAt:   s.now().Add(time.Duration(res[2]) * time.Millisecond),
	}, nil
}

func (s *RedisWindowStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisWindowStore) GetCurrentCount(ctx context.Context, key string) (int, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse counter %q: %w", key, err)
	}
	return n, nil
}
