package limiters

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/authgate/internal/bucket"
	"github.com/rs/zerolog"
)

// KeyPrefix is the namespace of every bucket key.
const KeyPrefix = "rate_limit"

// UnknownClient is used when no client identity could be resolved.
const UnknownClient = "unknown"

// Evaluator runs one token bucket evaluation. *bucket.Engine satisfies it.
type Evaluator interface {
	Take(ctx context.Context, key string, p bucket.Params, now time.Time) (bucket.Result, error)
}

// Outcome classifies a gate decision.
type Outcome int

const (
	OutcomeAllowed Outcome = iota
	OutcomeDenied
	OutcomeStoreError
	OutcomeDisabled
	OutcomeUnknownRoute
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeDenied:
		return "denied"
	case OutcomeStoreError:
		return "store_error"
	case OutcomeDisabled:
		return "disabled"
	case OutcomeUnknownRoute:
		return "unknown_route"
	default:
		return "unknown"
	}
}

// Observer receives one call per evaluated decision.
type Observer interface {
	ObserveDecision(route string, outcome Outcome, latency time.Duration)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(route string, outcome Outcome, latency time.Duration)

func (f ObserverFunc) ObserveDecision(route string, outcome Outcome, latency time.Duration) {
	f(route, outcome, latency)
}

// Decision is the result of Gate.Check. Limit, Remaining and RetryAfter are
// only meaningful when the bucket was actually evaluated.
type Decision struct {
	Allowed    bool
	Outcome    Outcome
	Route      string
	Key        string
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type Option func(*Gate)

func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(g *Gate) { g.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithStoreTimeout bounds each store call. Zero keeps the caller's deadline.
func WithStoreTimeout(d time.Duration) Option {
	return func(g *Gate) { g.storeTimeout = d }
}

// Gate applies per-route policies to client requests.
type Gate struct {
	evaluator    Evaluator
	policies     map[string]Policy
	logger       zerolog.Logger
	observer     Observer
	now          func() time.Time
	storeTimeout time.Duration
}

// NewGate validates every policy up front. A nil evaluator yields a gate
// that allows everything.
func NewGate(evaluator Evaluator, policies map[string]Policy, opts ...Option) (*Gate, error) {
	g := &Gate{
		evaluator: evaluator,
		policies:  make(map[string]Policy, len(policies)),
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for route, p := range policies {
		if route == "" || strings.Contains(route, ":") {
			return nil, fmt.Errorf("%w: route %q must be non-empty and must not contain ':'", ErrPolicyInvalid, route)
		}
		np, err := p.Normalize()
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", route, err)
		}
		g.policies[route] = np
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.storeTimeout < 0 {
		return nil, fmt.Errorf("%w: store timeout must be >= 0", ErrPolicyInvalid)
	}
	return g, nil
}

// Key derives the bucket key for a (route, client) pair.
func Key(route, client string) string {
	if client == "" {
		client = UnknownClient
	}
	return KeyPrefix + ":" + route + ":" + client
}

// Enabled reports whether decisions consult the store.
func (g *Gate) Enabled() bool {
	return g != nil && g.evaluator != nil
}

// Policy returns the normalized policy for route.
func (g *Gate) Policy(route string) (Policy, bool) {
	if g == nil {
		return Policy{}, false
	}
	p, ok := g.policies[route]
	return p, ok
}

// Routes lists configured routes in a stable order.
func (g *Gate) Routes() []string {
	if g == nil {
		return nil
	}
	out := make([]string, 0, len(g.policies))
	for route := range g.policies {
		out = append(out, route)
	}
	sort.Strings(out)
	return out
}

// Check evaluates the bucket for (route, client). It never returns an
// error: store failures are logged and allowed.
func (g *Gate) Check(ctx context.Context, route, client string) Decision {
	if !g.Enabled() {
		if g != nil {
			g.observe(route, OutcomeDisabled, 0)
		}
		return Decision{Allowed: true, Outcome: OutcomeDisabled, Route: route}
	}

	key := Key(route, client)
	policy, ok := g.policies[route]
	if !ok {
		g.logger.Warn().Str("route", route).Str("key", key).Msg("rate limit route not configured, allowing")
		g.observe(route, OutcomeUnknownRoute, 0)
		return Decision{Allowed: true, Outcome: OutcomeUnknownRoute, Route: route, Key: key}
	}

	if g.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.storeTimeout)
		defer cancel()
	}

	started := time.Now()
	res, err := g.evaluator.Take(ctx, key, policy.Params(), g.now())
	latency := time.Since(started)

	if err != nil {
		g.logger.Error().Err(err).Str("route", route).Str("key", key).Msg("rate limiter store unavailable, failing open")
		g.observe(route, OutcomeStoreError, latency)
		return Decision{Allowed: true, Outcome: OutcomeStoreError, Route: route, Key: key, Limit: policy.Capacity}
	}

	d := Decision{
		Allowed:   res.Allowed,
		Route:     route,
		Key:       key,
		Limit:     policy.Capacity,
		Remaining: int(math.Floor(res.Tokens)),
	}
	if res.Allowed {
		d.Outcome = OutcomeAllowed
	} else {
		d.Outcome = OutcomeDenied
		d.RetryAfter = res.RetryAfter(policy.RefillRate())
	}
	g.observe(route, d.Outcome, latency)
	return d
}

func (g *Gate) observe(route string, outcome Outcome, latency time.Duration) {
	if g.observer != nil {
		g.observer.ObserveDecision(route, outcome, latency)
	}
}
