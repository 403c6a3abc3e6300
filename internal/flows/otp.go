package flows

import (
	"context"
	"errors"
	"time"
)

type OTPMetrics struct {
	OTPVerifySuccess   int
	OTPVerifyFailure   int
	OTPResent          int
	OTPResendNotNeeded int
	OTPResendFailure   int
}

type OTPEvents struct {
	OTPVerify string
	OTPResend string
}

type OTPErrors struct {
	EngineNotReady error
	InvalidOTP     error
	UserNotFound   error
}

type OTPDeps struct {
	Base

	Route      string
	CodeDigits int
	CodeTTL    time.Duration

	CodeMatches  func(stored, submitted string, expiresAt, now time.Time) bool
	GenerateCode func(int) (string, error)
	SendCode     func(context.Context, string, string) error
	IssueToken   func(string) (AccessToken, error)

	Metrics OTPMetrics
	Events  OTPEvents
	Errors  OTPErrors
}

// RunVerifyOTP consumes the verification code of email, marks the account
// verified and issues an access token. Every rejection is reported as
// Errors.InvalidOTP so callers cannot tell an unknown account from a wrong
// code.
func RunVerifyOTP(ctx context.Context, email, code string, deps OTPDeps) (AccessToken, error) {
	normalizeBase(&deps.Base)
	if deps.CheckRate == nil || deps.FindUser == nil || deps.UpdateUser == nil ||
		deps.CodeMatches == nil || deps.IssueToken == nil {
		return AccessToken{}, deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	code = NormalizeCode(code)
	if err := deps.CheckRate(ctx, deps.Route); err != nil {
		deps.EmitRateLimit(ctx, deps.Route, email)
		return AccessToken{}, err
	}

	reject := func(reason string) (AccessToken, error) {
		deps.MetricInc(deps.Metrics.OTPVerifyFailure)
		deps.EmitAudit(ctx, deps.Events.OTPVerify, false, email, deps.Errors.InvalidOTP, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return AccessToken{}, deps.Errors.InvalidOTP
	}

	if email == "" || code == "" {
		return reject("empty_input")
	}

	user, err := deps.FindUser(ctx, email)
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			return reject("unknown_user")
		}
		return AccessToken{}, deps.MapStoreError(err)
	}
	if !deps.CodeMatches(user.OTPCode, code, user.OTPExpiresAt, deps.Now()) {
		return reject("code_mismatch_or_expired")
	}

	// The code is cleared only if it is still the one we matched; a
	// concurrent verify with the same code loses here.
	_, err = deps.UpdateUser(ctx, email, UserChange{
		Verified:     ptr(true),
		OTPCode:      ptr(""),
		OTPExpiresAt: ptr(time.Time{}),
		ExpectedOTP:  ptr(code),
	})
	if err != nil {
		if errors.Is(err, deps.Errors.InvalidOTP) || errors.Is(err, deps.Errors.UserNotFound) {
			return reject("code_consumed")
		}
		return AccessToken{}, deps.MapStoreError(err)
	}

	tok, err := deps.IssueToken(email)
	if err != nil {
		return AccessToken{}, err
	}

	deps.MetricInc(deps.Metrics.OTPVerifySuccess)
	deps.EmitAudit(ctx, deps.Events.OTPVerify, true, email, nil, func() map[string]string {
		return map[string]string{"user_id": user.ID}
	})
	return tok, nil
}

// RunResendOTP issues a fresh verification code for an unverified account.
// It returns alreadyVerified=true without sending anything when the account
// is verified.
func RunResendOTP(ctx context.Context, email string, deps OTPDeps) (alreadyVerified bool, err error) {
	normalizeBase(&deps.Base)
	if deps.CheckRate == nil || deps.FindUser == nil || deps.UpdateUser == nil ||
		deps.GenerateCode == nil || deps.SendCode == nil {
		return false, deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	if err := deps.CheckRate(ctx, deps.Route); err != nil {
		deps.EmitRateLimit(ctx, deps.Route, email)
		return false, err
	}

	user, err := deps.FindUser(ctx, email)
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			deps.MetricInc(deps.Metrics.OTPResendFailure)
			deps.EmitAudit(ctx, deps.Events.OTPResend, false, email, deps.Errors.UserNotFound, nil)
			return false, deps.Errors.UserNotFound
		}
		return false, deps.MapStoreError(err)
	}
	if user.Verified {
		deps.MetricInc(deps.Metrics.OTPResendNotNeeded)
		deps.EmitAudit(ctx, deps.Events.OTPResend, true, email, nil, func() map[string]string {
			return map[string]string{"result": "already_verified"}
		})
		return true, nil
	}

	code, err := deps.GenerateCode(deps.CodeDigits)
	if err != nil {
		return false, err
	}
	_, err = deps.UpdateUser(ctx, email, UserChange{
		OTPCode:      ptr(code),
		OTPExpiresAt: ptr(deps.Now().Add(deps.CodeTTL)),
	})
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			return false, deps.Errors.UserNotFound
		}
		return false, deps.MapStoreError(err)
	}

	if err := deps.SendCode(ctx, email, code); err != nil {
		deps.MailFailed(ctx, "verification", email, err)
	}

	deps.MetricInc(deps.Metrics.OTPResent)
	deps.EmitAudit(ctx, deps.Events.OTPResend, true, email, nil, nil)
	return false, nil
}
