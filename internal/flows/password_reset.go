package flows

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type PasswordResetMetrics struct {
	PasswordResetRequest int
	PasswordResetSuccess int
	PasswordResetFailure int
}

type PasswordResetEvents struct {
	PasswordResetRequest string
	PasswordResetConfirm string
}

type PasswordResetErrors struct {
	EngineNotReady error
	InvalidOTP     error
	PasswordPolicy error
	UserNotFound   error
}

type PasswordResetDeps struct {
	Base

	Route      string
	CodeDigits int
	CodeTTL    time.Duration

	CodeMatches   func(stored, submitted string, expiresAt, now time.Time) bool
	GenerateCode  func(int) (string, error)
	SendCode      func(context.Context, string, string) error
	CheckPassword func(string) error
	HashPassword  func(string) (string, error)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunForgotPassword stores and mails a reset code. Unknown emails succeed
// without side effects so the response does not reveal registration.
func RunForgotPassword(ctx context.Context, email string, deps PasswordResetDeps) error {
	normalizeBase(&deps.Base)
	if deps.CheckRate == nil || deps.FindUser == nil || deps.UpdateUser == nil ||
		deps.GenerateCode == nil || deps.SendCode == nil {
		return deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	if err := deps.CheckRate(ctx, deps.Route); err != nil {
		deps.EmitRateLimit(ctx, deps.Route, email)
		return err
	}

	deps.MetricInc(deps.Metrics.PasswordResetRequest)
	if email == "" {
		return nil
	}

	if _, err := deps.FindUser(ctx, email); err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, email, nil, func() map[string]string {
				return map[string]string{"result": "unknown_user"}
			})
			return nil
		}
		return deps.MapStoreError(err)
	}

	code, err := deps.GenerateCode(deps.CodeDigits)
	if err != nil {
		return err
	}
	_, err = deps.UpdateUser(ctx, email, UserChange{
		OTPCode:      ptr(code),
		OTPExpiresAt: ptr(deps.Now().Add(deps.CodeTTL)),
	})
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			return nil
		}
		return deps.MapStoreError(err)
	}

	if err := deps.SendCode(ctx, email, code); err != nil {
		deps.MailFailed(ctx, "password_reset", email, err)
	}

	deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, email, nil, func() map[string]string {
		return map[string]string{"result": "code_sent"}
	})
	return nil
}

// RunResetPassword replaces the password of email when code matches. The new
// hash is written together with clearing the code, conditional on the code
// still being the stored one.
func RunResetPassword(ctx context.Context, email, code, newPassword string, deps PasswordResetDeps) error {
	normalizeBase(&deps.Base)
	if deps.CheckRate == nil || deps.FindUser == nil || deps.UpdateUser == nil ||
		deps.CodeMatches == nil || deps.HashPassword == nil {
		return deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	code = NormalizeCode(code)
	if err := deps.CheckRate(ctx, deps.Route); err != nil {
		deps.EmitRateLimit(ctx, deps.Route, email)
		return err
	}

	fail := func(err error, reason string) error {
		deps.MetricInc(deps.Metrics.PasswordResetFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, false, email, err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return err
	}

	if email == "" || code == "" {
		return fail(deps.Errors.InvalidOTP, "empty_input")
	}

	user, err := deps.FindUser(ctx, email)
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			return fail(deps.Errors.InvalidOTP, "unknown_user")
		}
		return deps.MapStoreError(err)
	}
	if !deps.CodeMatches(user.OTPCode, code, user.OTPExpiresAt, deps.Now()) {
		return fail(deps.Errors.InvalidOTP, "code_mismatch_or_expired")
	}

	if deps.CheckPassword != nil {
		if err := deps.CheckPassword(newPassword); err != nil {
			return fail(fmt.Errorf("%w: %v", deps.Errors.PasswordPolicy, err), "password_policy")
		}
	}
	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		return fail(err, "hash")
	}

	_, err = deps.UpdateUser(ctx, email, UserChange{
		PasswordHash: &hash,
		OTPCode:      ptr(""),
		OTPExpiresAt: ptr(time.Time{}),
		ExpectedOTP:  ptr(code),
	})
	if err != nil {
		if errors.Is(err, deps.Errors.InvalidOTP) || errors.Is(err, deps.Errors.UserNotFound) {
			return fail(deps.Errors.InvalidOTP, "code_consumed")
		}
		return deps.MapStoreError(err)
	}

	deps.MetricInc(deps.Metrics.PasswordResetSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, true, email, nil, func() map[string]string {
		return map[string]string{"user_id": user.ID}
	})
	return nil
}
