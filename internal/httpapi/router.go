// Package httpapi serves the authentication endpoints over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/internal/obs"
	"github.com/MrEthical07/authgate/middleware"
)

// Service is the subset of *authgate.Engine the router needs.
type Service interface {
	Signup(ctx context.Context, req authgate.SignupRequest) error
	VerifyOTP(ctx context.Context, email, code string) (*authgate.TokenResult, error)
	Login(ctx context.Context, email, password string) (*authgate.TokenResult, error)
	ResendOTP(ctx context.Context, email string) (*authgate.ResendResult, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	CheckRate(ctx context.Context, route string) authgate.RateDecision
	ValidateAccess(tokenStr string) (*authgate.AccessClaims, error)
	Me(ctx context.Context, email string) (*authgate.Profile, error)
	RateLimitEnabled() bool
}

type Options struct {
	Service Service
	Logger  zerolog.Logger

	// Metrics records per-route request counters when set.
	Metrics *obs.Metrics
	// MetricsHandler is mounted at MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string

	RequestTimeout    time.Duration
	MaxBodyBytes      int64
	TrustProxyHeaders bool
}

// NewRouter wires the middleware chain and routes.
func NewRouter(opts Options) http.Handler {
	h := &handler{
		svc:     opts.Service,
		maxBody: opts.MaxBodyBytes,
	}
	if h.maxBody <= 0 {
		h.maxBody = 1 << 20
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(obs.Logger(opts.Logger))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	r.Use(middleware.ClientIP(opts.TrustProxyHeaders))

	r.Get("/healthz", h.healthz)
	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, opts.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(chimw.Timeout(opts.RequestTimeout))
		}

		// The token is taken before the body is decoded, so malformed
		// requests are throttled like any other.
		limit := func(route string) chi.Router {
			return r.With(middleware.RateLimit(opts.Service, route))
		}
		limit(authgate.RouteSignup).Post("/signup", h.signup)
		limit(authgate.RouteVerifyOTP).Post("/verify-otp", h.verifyOTP)
		limit(authgate.RouteLogin).Post("/login", h.login)
		limit(authgate.RouteResendOTP).Post("/resend-otp", h.resendOTP)
		limit(authgate.RouteForgotPassword).Post("/forgot-password", h.forgotPassword)
		limit(authgate.RouteResetPassword).Post("/reset-password", h.resetPassword)

		r.With(
			middleware.RateLimit(opts.Service, authgate.RouteMe),
			middleware.Guard(opts.Service),
		).Get("/me", h.me)
	})

	return r
}
