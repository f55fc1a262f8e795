package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and consumes a bucket atomically.
// KEYS[1] bucket key, ARGV: refill rate per second, capacity, cost, now (seconds), ttl (seconds).
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, ttl)

return {allowed, math.floor(tokens)}
`)

// Redis shares buckets between instances.
type Redis struct {
	client redis.Scripter
	rps    float64
	burst  int
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedis(client redis.Scripter, rps float64, burst int) *Redis {
	if rps <= 0 {
		rps = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Redis{
		client: client,
		rps:    rps,
		burst:  burst,
		prefix: "checkout:ratelimit:",
		ttl:    time.Minute,
		now:    time.Now,
	}
}

// NewRedisClient connects to addr with default options.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(r.now().UnixMicro()) / 1e6
	res, err := tokenBucketScript.Run(ctx, r.client,
		[]string{r.prefix + key},
		r.rps, r.burst, 1, now, int(r.ttl.Seconds()),
	).Result()
	if err != nil {
		return false, fmt.Errorf("redis limiter: %w", err)
	}
	values, ok := res.([]any)
	if !ok || len(values) != 2 {
		return false, fmt.Errorf("redis limiter: unexpected script result %T", res)
	}
	allowed, _ := values[0].(int64)
	return allowed == 1, nil
}
