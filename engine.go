package authgate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	internalflows "github.com/MrEthical07/authgate/internal/flows"
	"github.com/MrEthical07/authgate/internal/limiters"
	"github.com/rs/zerolog"
)

// timingPassword seeds the hash verified for unknown accounts on login.
const timingPassword = "authgate-timing-equalizer"

// Engine runs the authentication flows. It is safe for concurrent use once
// returned by Builder.Build.
type Engine struct {
	config  Config
	gate    *limiters.Gate
	users   UserStore
	mailer  Mailer
	hasher  PasswordHasher
	tokens  TokenIssuer
	audit   AuditSink
	metrics *Metrics
	logger  zerolog.Logger
	now     func() time.Time

	dispatcher *auditDispatcher

	timingOnce sync.Once
	timingHash string
}

// Close flushes the async audit dispatcher. The Redis client and user store
// belong to the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.dispatcher.Close()
}

// AuditDropped reports audit events lost to a full or closed dispatcher.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

// MetricsSnapshot copies the current counters. It returns empty maps when
// metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// RateLimitEnabled reports whether a Redis client backs the limiter.
func (e *Engine) RateLimitEnabled() bool {
	return e != nil && e.gate.Enabled()
}

// Routes returns the configured limiter routes in sorted order.
func (e *Engine) Routes() []string {
	if e == nil {
		return nil
	}
	return e.gate.Routes()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Signup creates an unverified account and mails its verification code.
// A taken email returns ErrUserExists. A failed mail send does not undo the
// account; ResendOTP recovers it.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunSignup(ctx, internalflows.SignupInput{
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		University: req.University,
		Password:   req.Password,
	}, e.signupFlowDeps())
}

// VerifyOTP consumes the verification code sent at signup or by ResendOTP,
// marks the account verified and returns an access token. Unknown accounts,
// wrong codes, missing codes and expired codes all return ErrInvalidOTP.
func (e *Engine) VerifyOTP(ctx context.Context, email, code string) (*TokenResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	tok, err := internalflows.RunVerifyOTP(ctx, email, code, e.otpFlowDeps(RouteVerifyOTP))
	if err != nil {
		return nil, err
	}
	return toTokenResult(tok), nil
}

// Login checks the password and returns an access token. Unknown emails and
// wrong passwords both return ErrInvalidCredentials. Unverified accounts get
// ErrAccountUnverified only after the password matched.
func (e *Engine) Login(ctx context.Context, email, password string) (*TokenResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	tok, err := internalflows.RunLogin(ctx, email, password, e.loginFlowDeps())
	if err != nil {
		return nil, err
	}
	return toTokenResult(tok), nil
}

// ResendOTP sends a new verification code. Unknown emails return
// ErrUserNotFound; verified accounts get AlreadyVerified and no mail.
func (e *Engine) ResendOTP(ctx context.Context, email string) (*ResendResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	already, err := internalflows.RunResendOTP(ctx, email, e.otpFlowDeps(RouteResendOTP))
	if err != nil {
		return nil, err
	}
	return &ResendResult{AlreadyVerified: already}, nil
}

// ForgotPassword mails a reset code. It returns nil for unknown emails.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunForgotPassword(ctx, email, e.passwordResetFlowDeps(RouteForgotPassword))
}

// ResetPassword replaces the password when code is the current reset code.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunResetPassword(ctx, email, code, newPassword, e.passwordResetFlowDeps(RouteResetPassword))
}

// CheckRate takes one token from the bucket of (route, client IP in ctx).
// It never fails: store errors and a missing Redis client yield an allowed,
// unenforced decision. Denials are audited as rate_limit_triggered.
func (e *Engine) CheckRate(ctx context.Context, route string) RateDecision {
	if e == nil {
		return RateDecision{Allowed: true, Route: route}
	}

	out := e.decideRate(ctx, route)
	if !out.Allowed {
		e.emitRateLimit(ctx, route, "")
	}
	return out
}

func (e *Engine) decideRate(ctx context.Context, route string) RateDecision {
	d := e.gate.Check(ctx, route, clientIPFromContext(ctx))
	out := RateDecision{
		Allowed: d.Allowed,
		Route:   route,
	}
	if d.Outcome == limiters.OutcomeAllowed || d.Outcome == limiters.OutcomeDenied {
		out.Enforced = true
		out.Limit = d.Limit
		out.Remaining = d.Remaining
		out.RetryAfter = d.RetryAfter
	}
	return out
}

// checkRate is the flow hook. The flow audits its own denials with the
// request email.
func (e *Engine) checkRate(ctx context.Context, route string) error {
	if rateCheckedFromContext(ctx) == route {
		return nil
	}
	d := e.decideRate(ctx, route)
	if d.Allowed {
		return nil
	}
	return &RateLimitError{Route: route, Limit: d.Limit, RetryAfter: d.RetryAfter}
}

// ValidateAccess verifies an access token and returns its claims. Every
// failure wraps ErrTokenInvalid.
func (e *Engine) ValidateAccess(tokenStr string) (*AccessClaims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.tokens.Parse(tokenStr)
	if err != nil {
		e.metricInc(MetricTokenInvalid)
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Subject == "" {
		e.metricInc(MetricTokenInvalid)
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	out := &AccessClaims{
		Subject: claims.Subject,
		TokenID: claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Me returns the profile of email, normally the subject of a validated
// access token.
func (e *Engine) Me(ctx context.Context, email string) (*Profile, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	u, err := e.users.FindByEmail(ctx, internalflows.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, mapStoreError(err)
	}
	p := profileFromUser(u)
	return &p, nil
}

func (e *Engine) mailFailed(_ context.Context, kind, email string, err error) {
	e.metricInc(MetricMailFailure)
	e.logger.Error().Err(err).Str("kind", kind).Str("email", email).Msg("mail delivery failed")
}

// equalizeTiming verifies password against a fixed hash so a login for an
// unknown account costs about as much as one with a wrong password.
func (e *Engine) equalizeTiming(password string) {
	e.timingOnce.Do(func() {
		hash, err := e.hasher.Hash(timingPassword)
		if err == nil {
			e.timingHash = hash
		}
	})
	if e.timingHash == "" {
		return
	}
	_, _ = e.hasher.Verify(password, e.timingHash)
}

func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUserStoreUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
}

func toTokenResult(tok internalflows.AccessToken) *TokenResult {
	return &TokenResult{
		AccessToken: tok.Token,
		TokenType:   TokenTypeBearer,
		ExpiresAt:   tok.ExpiresAt,
	}
}
