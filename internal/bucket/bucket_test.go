package bucket

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testNow = time.Unix(1_700_000_000, 0)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func perMinute(rpm float64) Params {
	return Params{RefillRate: rpm / 60, Capacity: rpm, TTL: time.Hour}
}

func TestTakeColdStartIsFull(t *testing.T) {
	mr, rdb := newTestRedis(t)
	e := New(rdb)

	res, err := e.Take(context.Background(), "rate_limit:signup:1.2.3.4", perMinute(5), testNow)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected cold start to be allowed")
	}
	if res.Tokens != 4 {
		t.Fatalf("expected 4 tokens left, got %v", res.Tokens)
	}
	if got := mr.HGet("rate_limit:signup:1.2.3.4", "tokens"); got != "4" {
		t.Fatalf("expected stored tokens 4, got %q", got)
	}
	if got := mr.HGet("rate_limit:signup:1.2.3.4", "last_updated"); got != "1700000000" {
		t.Fatalf("expected stored last_updated 1700000000, got %q", got)
	}
}

func TestTakeExhaustsCapacityWithoutTimePassing(t *testing.T) {
	_, rdb := newTestRedis(t)
	e := New(rdb)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := e.Take(ctx, "k", perMinute(5), testNow)
		if err != nil {
			t.Fatalf("Take %d failed: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("expected call %d to be allowed", i)
		}
	}

	res, err := e.Take(ctx, "k", perMinute(5), testNow)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected sixth call to be denied")
	}
}

func TestTakeDeniedLeavesTokensUnchanged(t *testing.T) {
	mr, rdb := newTestRedis(t)
	e := New(rdb)
	mr.HSet("k", "tokens", "0", "last_updated", "1700000000")

	res, err := e.Take(context.Background(), "k", perMinute(5), testNow)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected denial with zero tokens and zero elapsed time")
	}
	if res.Tokens != 0 {
		t.Fatalf("expected 0 tokens, got %v", res.Tokens)
	}
	if got := mr.HGet("k", "tokens"); got != "0" {
		t.Fatalf("expected stored tokens 0, got %q", got)
	}
}

func TestTakeRefillsAfterOneMinute(t *testing.T) {
	_, rdb := newTestRedis(t)
	e := New(rdb)
	ctx := context.Background()
	p := perMinute(5)

	for i := 0; i < 5; i++ {
		if _, err := e.Take(ctx, "k", p, testNow); err != nil {
			t.Fatalf("Take failed: %v", err)
		}
	}

	res, err := e.Take(ctx, "k", p, testNow.Add(60*time.Second))
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected allowed after a full minute of refill")
	}
	if math.Abs(res.Tokens-4) > 1e-9 {
		t.Fatalf("expected ~4 tokens left, got %v", res.Tokens)
	}
}

func TestTakeCapsRefillAtCapacity(t *testing.T) {
	_, rdb := newTestRedis(t)
	e := New(rdb)
	ctx := context.Background()
	p := perMinute(5)

	if _, err := e.Take(ctx, "k", p, testNow); err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	res, err := e.Take(ctx, "k", p, testNow.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if res.Tokens != 4 {
		t.Fatalf("expected refill capped at capacity (4 left), got %v", res.Tokens)
	}
}

func TestTakeClockSkewKeepsLastUpdatedMonotonic(t *testing.T) {
	mr, rdb := newTestRedis(t)
	e := New(rdb)
	mr.HSet("k", "tokens", "2", "last_updated", "1700000030")

	res, err := e.Take(context.Background(), "k", perMinute(5), testNow)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected allowed with 2 tokens")
	}
	if res.Tokens != 1 {
		t.Fatalf("expected negative elapsed time to add nothing, got %v tokens", res.Tokens)
	}
	if got := mr.HGet("k", "last_updated"); got != "1700000030" {
		t.Fatalf("expected last_updated to stay at 1700000030, got %q", got)
	}
}

func TestTakeNonNumericStateResetsToFull(t *testing.T) {
	mr, rdb := newTestRedis(t)
	e := New(rdb)
	mr.HSet("k", "tokens", "garbage", "last_updated", "1700000000")

	res, err := e.Take(context.Background(), "k", perMinute(3), testNow)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if !res.Allowed || res.Tokens != 2 {
		t.Fatalf("expected reinitialized bucket, got %+v", res)
	}
}

func TestTakeRefillOverflowClampsToCapacity(t *testing.T) {
	mr, rdb := newTestRedis(t)
	e := New(rdb)
	// elapsed * rate overflows to +Inf inside the script.
	mr.HSet("k", "tokens", "0", "last_updated", "-1e308")

	p := Params{RefillRate: 1e10, Capacity: 5, TTL: time.Hour}
	res, err := e.Take(context.Background(), "k", p, testNow)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected allowed after overflowing refill")
	}
	if res.Tokens != 4 {
		t.Fatalf("expected overflowing refill clamped to capacity, got %v", res.Tokens)
	}
}

func TestTakeScriptRejectsNonNumericArgs(t *testing.T) {
	mr, rdb := newTestRedis(t)

	err := takeTokenLua.Run(context.Background(), rdb, []string{"k"}, "abc", 5, unixSeconds(testNow), 3600).Err()
	if err == nil || !strings.Contains(err.Error(), "invalid argument") {
		t.Fatalf("expected invalid argument error, got %v", err)
	}
	if mr.Exists("k") {
		t.Fatalf("expected no bucket written for rejected args")
	}
}

func TestTakeRefreshesExpiryOnEveryCall(t *testing.T) {
	mr, rdb := newTestRedis(t)
	e := New(rdb)
	ctx := context.Background()
	p := Params{RefillRate: 1, Capacity: 1, TTL: 1500 * time.Millisecond}

	if _, err := e.Take(ctx, "k", p, testNow); err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if ttl := mr.TTL("k"); ttl != 2*time.Second {
		t.Fatalf("expected ttl rounded up to 2s, got %v", ttl)
	}

	p.TTL = time.Hour
	mr.FastForward(time.Second)
	res, err := e.Take(ctx, "k", p, testNow)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected denial on an empty bucket")
	}
	if ttl := mr.TTL("k"); ttl != time.Hour {
		t.Fatalf("expected denied call to refresh ttl to 1h, got %v", ttl)
	}
}

func TestTakeConcurrentCallersShareOneToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	e := New(rdb)
	mr.HSet("k", "tokens", "1", "last_updated", "1700000000")

	const workers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
		errs    []error
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			res, err := e.Take(context.Background(), "k", perMinute(5), testNow)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.Allowed {
				allowed++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if allowed != 1 {
		t.Fatalf("expected exactly one allowed call, got %d", allowed)
	}
}

func TestTakeAllowedCountBoundedByCapacityPlusRefill(t *testing.T) {
	_, rdb := newTestRedis(t)
	e := New(rdb)
	ctx := context.Background()
	p := Params{RefillRate: 1, Capacity: 3, TTL: time.Hour}

	const window = 10 * time.Second
	allowed := 0
	for elapsed := time.Duration(0); elapsed <= window; elapsed += 100 * time.Millisecond {
		res, err := e.Take(ctx, "k", p, testNow.Add(elapsed))
		if err != nil {
			t.Fatalf("Take failed: %v", err)
		}
		if res.Allowed {
			allowed++
		}
	}

	bound := int(p.Capacity + p.RefillRate*window.Seconds())
	if allowed > bound {
		t.Fatalf("allowed %d exceeds C+R*T=%d", allowed, bound)
	}
	if allowed < bound-1 {
		t.Fatalf("allowed %d is far below C+R*T=%d", allowed, bound)
	}
}

func TestTakeStoreUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	e := New(rdb)
	mr.Close()

	_, err := e.Take(context.Background(), "k", perMinute(5), testNow)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestTakeWithoutClient(t *testing.T) {
	_, err := New(nil).Take(context.Background(), "k", perMinute(5), testNow)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestParamsValidate(t *testing.T) {
	cases := map[string]Params{
		"zero rate":     {RefillRate: 0, Capacity: 5, TTL: time.Hour},
		"negative rate": {RefillRate: -1, Capacity: 5, TTL: time.Hour},
		"nan rate":      {RefillRate: math.NaN(), Capacity: 5, TTL: time.Hour},
		"inf rate":      {RefillRate: math.Inf(1), Capacity: 5, TTL: time.Hour},
		"small cap":     {RefillRate: 1, Capacity: 0.5, TTL: time.Hour},
		"short ttl":     {RefillRate: 1, Capacity: 5, TTL: 10 * time.Millisecond},
	}
	for name, p := range cases {
		if err := p.Validate(); !errors.Is(err, ErrInvalidParams) {
			t.Fatalf("%s: expected ErrInvalidParams, got %v", name, err)
		}
	}

	if err := perMinute(5).Validate(); err != nil {
		t.Fatalf("expected default params to validate, got %v", err)
	}
}

func TestResultRetryAfter(t *testing.T) {
	if got := (Result{Tokens: 2}).RetryAfter(1); got != 0 {
		t.Fatalf("expected zero retry with tokens available, got %v", got)
	}
	if got := (Result{Tokens: 0}).RetryAfter(5.0 / 60); got != 12*time.Second {
		t.Fatalf("expected 12s retry at 5/min, got %v", got)
	}
	if got := (Result{Tokens: 0.5}).RetryAfter(1); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms retry, got %v", got)
	}
}
