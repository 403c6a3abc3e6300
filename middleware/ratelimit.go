package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/MrEthical07/authgate"
)

// RateLimitedDetail is the body detail of every 429 response.
const RateLimitedDetail = "Too many requests. Please try again later."

// RateChecker is satisfied by *authgate.Engine.
type RateChecker interface {
	CheckRate(ctx context.Context, route string) authgate.RateDecision
}

// RateLimit consumes one token of route per request. Run it after ClientIP.
// Limiter failures never reject: the checker fails open. Allowed requests
// carry authgate.WithRateChecked so the Engine flow behind the handler does
// not take a second token.
func RateLimit(checker RateChecker, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if checker == nil {
				next.ServeHTTP(w, r)
				return
			}

			d := checker.CheckRate(r.Context(), route)
			if d.Enforced {
				setRateHeaders(w, d)
			}
			if !d.Allowed {
				WriteRateLimited(w, d.RetryAfter.Seconds())
				return
			}

			next.ServeHTTP(w, r.WithContext(authgate.WithRateChecked(r.Context(), route)))
		})
	}
}

// WriteRateLimited writes the 429 response. retryAfter is rounded up to
// whole seconds, minimum one.
func WriteRateLimited(w http.ResponseWriter, retryAfter float64) {
	secs := int64(math.Ceil(retryAfter))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	WriteDetail(w, http.StatusTooManyRequests, RateLimitedDetail)
}

func setRateHeaders(w http.ResponseWriter, d authgate.RateDecision) {
	remaining := d.Remaining
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
}
