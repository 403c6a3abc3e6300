package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SignupInput is the flow-local signup request.
type SignupInput struct {
	Email      string
	FirstName  string
	LastName   string
	University string
	Password   string
}

type SignupMetrics struct {
	SignupSuccess   int
	SignupDuplicate int
	SignupFailure   int
}

type SignupEvents struct {
	SignupSuccess   string
	SignupDuplicate string
	SignupFailure   string
}

type SignupErrors struct {
	EngineNotReady error
	InvalidRequest error
	PasswordPolicy error
	UserExists     error
	UserNotFound   error
}

type SignupDeps struct {
	Base

	Route               string
	CodeDigits          int
	CodeTTL             time.Duration
	AllowedUniversities []string
	MaxNameLength       int

	CheckPassword func(string) error
	HashPassword  func(string) (string, error)
	CreateUser    func(context.Context, NewUser) (UserRecord, error)
	GenerateCode  func(int) (string, error)
	SendCode      func(context.Context, string, string) error

	Metrics SignupMetrics
	Events  SignupEvents
	Errors  SignupErrors
}

// RunSignup registers an unverified account and mails its verification code.
// Mail delivery failures are reported through MailFailed and do not fail the
// signup.
func RunSignup(ctx context.Context, in SignupInput, deps SignupDeps) error {
	normalizeBase(&deps.Base)
	if deps.CheckRate == nil || deps.FindUser == nil || deps.CreateUser == nil ||
		deps.HashPassword == nil || deps.GenerateCode == nil || deps.SendCode == nil {
		return deps.Errors.EngineNotReady
	}

	email := NormalizeEmail(in.Email)
	if err := deps.CheckRate(ctx, deps.Route); err != nil {
		deps.EmitRateLimit(ctx, deps.Route, email)
		return err
	}

	fail := func(err error, reason string) error {
		deps.MetricInc(deps.Metrics.SignupFailure)
		deps.EmitAudit(ctx, deps.Events.SignupFailure, false, email, err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return err
	}

	if err := validateSignup(email, in, deps); err != nil {
		return fail(fmt.Errorf("%w: %v", deps.Errors.InvalidRequest, err), "invalid_input")
	}
	if deps.CheckPassword != nil {
		if err := deps.CheckPassword(in.Password); err != nil {
			return fail(fmt.Errorf("%w: %v", deps.Errors.PasswordPolicy, err), "password_policy")
		}
	}

	if _, err := deps.FindUser(ctx, email); err == nil {
		deps.MetricInc(deps.Metrics.SignupDuplicate)
		deps.EmitAudit(ctx, deps.Events.SignupDuplicate, false, email, deps.Errors.UserExists, nil)
		return deps.Errors.UserExists
	} else if !errors.Is(err, deps.Errors.UserNotFound) {
		return fail(deps.MapStoreError(err), "store_lookup")
	}

	hash, err := deps.HashPassword(in.Password)
	if err != nil {
		return fail(err, "hash")
	}
	code, err := deps.GenerateCode(deps.CodeDigits)
	if err != nil {
		return fail(err, "code_generation")
	}

	created, err := deps.CreateUser(ctx, NewUser{
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		University:   strings.TrimSpace(in.University),
		PasswordHash: hash,
		OTPCode:      code,
		OTPExpiresAt: deps.Now().Add(deps.CodeTTL),
	})
	if err != nil {
		if errors.Is(err, deps.Errors.UserExists) {
			deps.MetricInc(deps.Metrics.SignupDuplicate)
			deps.EmitAudit(ctx, deps.Events.SignupDuplicate, false, email, err, nil)
			return deps.Errors.UserExists
		}
		return fail(deps.MapStoreError(err), "store_create")
	}

	if err := deps.SendCode(ctx, email, code); err != nil {
		deps.MailFailed(ctx, "verification", email, err)
	}

	deps.MetricInc(deps.Metrics.SignupSuccess)
	deps.EmitAudit(ctx, deps.Events.SignupSuccess, true, email, nil, func() map[string]string {
		return map[string]string{"user_id": created.ID}
	})
	return nil
}

func validateSignup(email string, in SignupInput, deps SignupDeps) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := validateName("first_name", strings.TrimSpace(in.FirstName), deps.MaxNameLength); err != nil {
		return err
	}
	if err := validateName("last_name", strings.TrimSpace(in.LastName), deps.MaxNameLength); err != nil {
		return err
	}
	if err := validateUniversity(strings.TrimSpace(in.University), deps.AllowedUniversities); err != nil {
		return err
	}
	if in.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}
