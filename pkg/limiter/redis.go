package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTokenBucketScript refills and consumes a bucket atomically. State
// lives in a hash per actor with a 60s idle expiry.
const redisTokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1])
local last_refill = tonumber(bucket[2])

if tokens == nil then
	tokens = capacity
	last_refill = now
end

local elapsed = now - last_refill
tokens = tokens + (elapsed * refill_rate)
if tokens > capacity then
	tokens = capacity
end

local allowed = 0
if tokens >= cost then
	tokens = tokens - cost
	allowed = 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_refill', now)
redis.call('EXPIRE', key, 60)

return {allowed, tokens}
`

// RedisStore shares token buckets across instances via Redis.
type RedisStore struct {
	client *redis.Client
	script *redis.Script
}

// NewRedisStore connects to Redis at addr.
func NewRedisStore(addr, password string, db int) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{
		client: client,
		script: redis.NewScript(redisTokenBucketScript),
	}
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Allow(ctx context.Context, actor string, policy Policy, cost int) (bool, error) {
	key := fmt.Sprintf("icl:limiter:%s", actor)

	rate := float64(policy.PerMinute) / 60.0
	if rate <= 0 {
		rate = 1.0
	}
	now := float64(time.Now().UnixMicro()) / 1e6

	result, err := s.script.Run(ctx, s.client, []string{key},
		policy.Burst, rate, now, cost).Result()
	if err != nil {
		return false, fmt.Errorf("limiter: redis script: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 1 {
		return false, fmt.Errorf("limiter: unexpected script result %v", result)
	}
	allowed, ok := values[0].(int64)
	if !ok {
		return false, fmt.Errorf("limiter: unexpected allowed value %v", values[0])
	}

	return allowed == 1, nil
}
