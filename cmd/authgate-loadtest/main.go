package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/userstore"
)

const loadRoute = "loadtest"

type clientState struct {
	ip      string
	allowed int64
	denied  int64
	failed  int64
}

func main() {
	var (
		clients     = flag.Int("clients", 50, "number of distinct client IPs")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		duration    = flag.Duration("duration", 10*time.Second, "length of the run")
		offered     = flag.Float64("rps", 2000, "total offered requests per second")
		rpm         = flag.Int("rpm", 60, "policy refill rate in requests per minute")
		capacity    = flag.Int("capacity", 10, "policy bucket capacity")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *clients <= 0 || *concurrency <= 0 || *duration <= 0 || *offered <= 0 || *rpm <= 0 || *capacity <= 0 {
		fmt.Fprintln(os.Stderr, "clients, concurrency, duration, rps, rpm and capacity must be > 0")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:      []string{addr},
			MaxRetries: -1,
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:      []string{addr},
			MaxRetries: -1,
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := authgate.DefaultConfig()
	cfg.Token.Secret = []byte("authgate-loadtest-secret-0123456789")
	cfg.RateLimit.Policies[loadRoute] = authgate.RatePolicy{RequestsPerMinute: *rpm, Capacity: *capacity}

	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(userstore.NewMemory()).
		WithLogger(zerolog.New(os.Stderr).Level(zerolog.WarnLevel)).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]clientState, *clients)
	for i := range states {
		states[i].ip = fmt.Sprintf("198.51.%d.%d", i/250, i%250+1)
	}

	pacer := rate.NewLimiter(rate.Limit(*offered), *concurrency)
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var (
		wg        sync.WaitGroup
		cursor    int64
		latencies = make([]time.Duration, 0, int(*offered*duration.Seconds()))
		mu        sync.Mutex
	)

	fmt.Printf("offering %.0f req/s across %d clients for %s (policy %d/min, capacity %d)\n",
		*offered, *clients, *duration, *rpm, *capacity)

	start := time.Now()
	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := pacer.Wait(ctx); err != nil {
					return
				}
				i := int(atomic.AddInt64(&cursor, 1)-1) % len(states)
				st := &states[i]

				t0 := time.Now()
				d := engine.CheckRate(authgate.WithClientIP(context.Background(), st.ip), loadRoute)
				elapsed := time.Since(t0)

				switch {
				case !d.Enforced:
					atomic.AddInt64(&st.failed, 1)
				case d.Allowed:
					atomic.AddInt64(&st.allowed, 1)
				default:
					atomic.AddInt64(&st.denied, 1)
				}

				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)

	// Every client may consume at most C + R*T tokens.
	bound := int64(*capacity) + int64(math.Ceil(float64(*rpm)/60*total.Seconds()))

	var allowed, denied, failed int64
	violations := 0
	for i := range states {
		st := &states[i]
		allowed += st.allowed
		denied += st.denied
		failed += st.failed
		if st.allowed > bound {
			violations++
			fmt.Printf("client %s allowed %d > bound %d\n", st.ip, st.allowed, bound)
		}
	}

	fmt.Println("---- results ----")
	fmt.Printf("elapsed=%s requests=%d allowed=%d denied=%d failed_open=%d bound_per_client=%d\n",
		total.Round(time.Millisecond), len(latencies), allowed, denied, failed, bound)
	printLatency(latencies, total)

	if violations > 0 {
		fmt.Fprintf(os.Stderr, "%d clients exceeded the bucket bound\n", violations)
		os.Exit(1)
	}
}

func printLatency(samples []time.Duration, total time.Duration) {
	if len(samples) == 0 {
		return
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	fmt.Printf("check: ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		float64(len(samples))/total.Seconds(),
		percentile(samples, 50).Round(time.Microsecond),
		percentile(samples, 95).Round(time.Microsecond),
		percentile(samples, 99).Round(time.Microsecond),
	)
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}
