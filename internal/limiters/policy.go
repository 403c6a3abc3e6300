package limiters

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authgate/internal/bucket"
)

// DefaultIdleTTL is how long an untouched bucket survives in Redis.
const DefaultIdleTTL = time.Hour

var ErrPolicyInvalid = errors.New("invalid rate limit policy")

// Policy is the per-route budget. Capacity 0 means "same as
// RequestsPerMinute"; IdleTTL 0 means DefaultIdleTTL.
type Policy struct {
	RequestsPerMinute int
	Capacity          int
	IdleTTL           time.Duration
}

// Normalize fills defaults and validates the policy.
func (p Policy) Normalize() (Policy, error) {
	if p.RequestsPerMinute <= 0 {
		return Policy{}, fmt.Errorf("%w: requests per minute must be > 0", ErrPolicyInvalid)
	}
	if p.Capacity < 0 {
		return Policy{}, fmt.Errorf("%w: capacity must be >= 0", ErrPolicyInvalid)
	}
	if p.Capacity == 0 {
		p.Capacity = p.RequestsPerMinute
	}
	if p.IdleTTL == 0 {
		p.IdleTTL = DefaultIdleTTL
	}
	if p.IdleTTL < time.Second {
		return Policy{}, fmt.Errorf("%w: idle ttl must be >= 1s", ErrPolicyInvalid)
	}
	return p, nil
}

// RefillRate is the refill speed in tokens per second.
func (p Policy) RefillRate() float64 {
	return float64(p.RequestsPerMinute) / 60
}

func (p Policy) Params() bucket.Params {
	return bucket.Params{
		RefillRate: p.RefillRate(),
		Capacity:   float64(p.Capacity),
		TTL:        p.IdleTTL,
	}
}
