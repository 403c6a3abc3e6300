package authgate

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's network origin to ctx. The Engine uses
// it as the client identity for per-route rate limiting and audit events.
// Requests without a client IP share the "unknown" bucket of each route.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIPFromContext returns the value stored by WithClientIP.
func ClientIPFromContext(ctx context.Context) string {
	return clientIPFromContext(ctx)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

type rateCheckedContextKey struct{}

// WithRateChecked records that the caller already took route's token for
// this request, so the Engine flow for route does not take a second one.
// middleware.RateLimit sets it after an allowed decision.
func WithRateChecked(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, rateCheckedContextKey{}, route)
}

func rateCheckedFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	route, _ := ctx.Value(rateCheckedContextKey{}).(string)
	return route
}
