package flows

import (
	"context"
	"errors"
)

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess    int
	LoginFailure    int
	LoginUnverified int
	PasswordRehash  int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess string
	LoginFailure string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	AccountUnverified  error
	AccountInactive    error
	UserNotFound       error
}

type LoginDeps struct {
	Base

	Route          string
	UpgradeOnLogin bool

	VerifyPassword func(password, encoded string) (bool, error)
	// NeedsUpgrade may be nil when the hasher cannot report stale parameters.
	NeedsUpgrade func(encoded string) (bool, error)
	HashPassword func(string) (string, error)
	// EqualizeTiming burns roughly one password verification for unknown
	// accounts so response time does not reveal registration.
	EqualizeTiming func(password string)
	IssueToken     func(string) (AccessToken, error)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin checks credentials and issues an access token for a verified,
// active account. Unknown email and wrong password both yield
// Errors.InvalidCredentials.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (AccessToken, error) {
	normalizeBase(&deps.Base)
	if deps.EqualizeTiming == nil {
		deps.EqualizeTiming = func(string) {}
	}
	if deps.CheckRate == nil || deps.FindUser == nil || deps.VerifyPassword == nil || deps.IssueToken == nil {
		return AccessToken{}, deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	if err := deps.CheckRate(ctx, deps.Route); err != nil {
		deps.EmitRateLimit(ctx, deps.Route, email)
		return AccessToken{}, err
	}

	fail := func(metric int, err error, reason string) (AccessToken, error) {
		deps.MetricInc(metric)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, email, err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return AccessToken{}, err
	}

	if email == "" || password == "" {
		return fail(deps.Metrics.LoginFailure, deps.Errors.InvalidCredentials, "empty_input")
	}

	user, err := deps.FindUser(ctx, email)
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			deps.EqualizeTiming(password)
			return fail(deps.Metrics.LoginFailure, deps.Errors.InvalidCredentials, "unknown_user")
		}
		return AccessToken{}, deps.MapStoreError(err)
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return fail(deps.Metrics.LoginFailure, deps.Errors.InvalidCredentials, "bad_password")
	}
	if !user.Verified {
		return fail(deps.Metrics.LoginUnverified, deps.Errors.AccountUnverified, "unverified")
	}
	if !user.Active {
		return fail(deps.Metrics.LoginFailure, deps.Errors.AccountInactive, "inactive")
	}

	if deps.UpgradeOnLogin {
		upgradePasswordHash(ctx, email, password, user.PasswordHash, deps)
	}

	tok, err := deps.IssueToken(email)
	if err != nil {
		return AccessToken{}, err
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, email, nil, func() map[string]string {
		return map[string]string{"user_id": user.ID}
	})
	return tok, nil
}

// upgradePasswordHash is best effort. A failed rehash keeps the old hash and
// does not fail the login.
func upgradePasswordHash(ctx context.Context, email, password, encoded string, deps LoginDeps) {
	if deps.NeedsUpgrade == nil || deps.HashPassword == nil || deps.UpdateUser == nil {
		return
	}
	stale, err := deps.NeedsUpgrade(encoded)
	if err != nil || !stale {
		return
	}
	fresh, err := deps.HashPassword(password)
	if err != nil {
		return
	}
	if _, err := deps.UpdateUser(ctx, email, UserChange{PasswordHash: &fresh}); err != nil {
		return
	}
	deps.MetricInc(deps.Metrics.PasswordRehash)
}
