package bucket

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrInvalidParams    = errors.New("invalid bucket parameters")
	ErrStoreUnavailable = errors.New("bucket store unavailable")
)

// takeTokenLua refills and consumes one token atomically.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity
// ARGV[3] = now (unix seconds, real)
// ARGV[4] = idle ttl (whole seconds)
//
// Returns {allowed (1|0), tokens left (string)}.
var takeTokenLua = redis.NewScript(`
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
if rate == nil or capacity == nil or now == nil or ttl == nil then
  return redis.error_reply('invalid argument')
end

local state = redis.call('HMGET', KEYS[1], 'tokens', 'last_updated')
local tokens = tonumber(state[1])
local last = tonumber(state[2])

if tokens == nil or last == nil then
  tokens = capacity
  last = now
else
  local delta = math.max(0, now - last)
  tokens = math.max(0, math.min(capacity, tokens + (delta * rate)))
  last = math.max(last, now)
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'last_updated', last)
redis.call('EXPIRE', KEYS[1], ttl)
return {allowed, tostring(tokens)}
`)

// Params describes one bucket evaluation.
type Params struct {
	RefillRate float64 // tokens per second
	Capacity   float64
	TTL        time.Duration
}

// Validate rejects parameters the script cannot evaluate meaningfully.
func (p Params) Validate() error {
	if !(p.RefillRate > 0) || math.IsInf(p.RefillRate, 0) {
		return fmt.Errorf("%w: refill rate must be a positive finite number", ErrInvalidParams)
	}
	if !(p.Capacity >= 1) || math.IsInf(p.Capacity, 0) {
		return fmt.Errorf("%w: capacity must be a finite number >= 1", ErrInvalidParams)
	}
	if p.TTL < time.Second {
		return fmt.Errorf("%w: ttl must be at least one second", ErrInvalidParams)
	}
	return nil
}

func (p Params) ttlSeconds() int64 {
	return int64(math.Ceil(p.TTL.Seconds()))
}

// Result is the outcome of a single evaluation.
type Result struct {
	Allowed bool
	Tokens  float64 // tokens left after the evaluation
}

// RetryAfter estimates how long until one whole token is available at the
// given refill rate. It is zero when a token is already available.
func (r Result) RetryAfter(rate float64) time.Duration {
	if r.Tokens >= 1 || rate <= 0 {
		return 0
	}
	// millisecond resolution, with slack for float noise in 1/rate
	ms := math.Ceil((1-r.Tokens)/rate*1000 - 1e-6)
	return time.Duration(ms) * time.Millisecond
}

// Engine evaluates token buckets stored in Redis.
type Engine struct {
	redis redis.UniversalClient
}

func New(client redis.UniversalClient) *Engine {
	return &Engine{redis: client}
}

// Take refills the bucket at key up to now and tries to consume one token.
//
// Any Redis, transport or context failure is returned wrapped in
// ErrStoreUnavailable. The call is never retried.
func (e *Engine) Take(ctx context.Context, key string, p Params, now time.Time) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if e == nil || e.redis == nil {
		return Result{}, fmt.Errorf("%w: no redis client", ErrStoreUnavailable)
	}

	reply, err := takeTokenLua.Run(ctx, e.redis,
		[]string{key},
		p.RefillRate,
		p.Capacity,
		unixSeconds(now),
		p.ttlSeconds(),
	).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	return parseReply(reply)
}

func parseReply(reply interface{}) (Result, error) {
	values, ok := reply.([]interface{})
	if !ok || len(values) != 2 {
		return Result{}, fmt.Errorf("%w: unexpected script reply %T", ErrStoreUnavailable, reply)
	}

	allowed, ok := values[0].(int64)
	if !ok {
		return Result{}, fmt.Errorf("%w: unexpected allowed flag %T", ErrStoreUnavailable, values[0])
	}

	raw, ok := values[1].(string)
	if !ok {
		return Result{}, fmt.Errorf("%w: unexpected token count %T", ErrStoreUnavailable, values[1])
	}
	tokens, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Result{}, fmt.Errorf("%w: token count %q: %v", ErrStoreUnavailable, raw, err)
	}

	return Result{Allowed: allowed == 1, Tokens: tokens}, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}
