package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrBucketInvalid  = errors.New("rate_limit_bucket_invalid")
	ErrScriptResponse = errors.New("rate_limit_script_response")
)

// takeScript refills a hash-backed bucket from redis server time, spends one
// token when available and returns {allowed, tokens_left, wait_ms}.
const takeScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = (t[1] * 1000) + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
if now > last then
  tokens = math.min(burst, tokens + ((now - last) / 1000) * rate)
end

local allowed = 0
local wait = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil(((1 - tokens) / rate) * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, tostring(tokens), wait}
`

// Decision is the outcome of one token request.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// bucket is a redis token bucket with a fixed refill rate and capacity.
type bucket struct {
	client *redis.Client
	script *redis.Script
	rate   float64
	burst  int
	ttl    time.Duration
}

func newBucket(client *redis.Client, rate float64, burst int) (*bucket, error) {
	if client == nil || rate <= 0 || burst <= 0 {
		return nil, ErrBucketInvalid
	}
	return &bucket{
		client: client,
		script: redis.NewScript(takeScript),
		rate:   rate,
		burst:  burst,
		ttl:    idleTTL(rate, burst),
	}, nil
}

func (b *bucket) take(ctx context.Context, key string) (*Decision, error) {
	if key == "" {
		return nil, ErrBucketInvalid
	}
	raw, err := b.script.Run(ctx, b.client, []string{key}, b.rate, b.burst, b.ttl.Milliseconds()).Slice()
	if err != nil {
		return nil, err
	}
	if len(raw) != 3 {
		return nil, ErrScriptResponse
	}

	left := asFloat(raw[1])
	return &Decision{
		Allowed:    asInt(raw[0]) == 1,
		Limit:      b.burst,
		Remaining:  int(math.Floor(left)),
		RetryAfter: time.Duration(asInt(raw[2])) * time.Millisecond,
	}, nil
}

// idleTTL keeps a bucket around for twice the time it needs to refill.
func idleTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Ceil(2 * float64(burst) / rate)
	return time.Duration(math.Max(seconds, 1)) * time.Second
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return parsed
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
