package authgate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited is matched by every *RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidRequest is returned for malformed or incomplete input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrPasswordPolicy is returned when a password fails the length policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrUserExists is returned by Signup for an email that is already registered.
	ErrUserExists = errors.New("user with this email already exists")
	// ErrUserNotFound is returned by ResendOTP and Me for unknown emails.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidOTP covers unknown user, code mismatch, missing code and expired code.
	ErrInvalidOTP = errors.New("invalid or expired otp code")
	// ErrInvalidCredentials covers unknown user and wrong password on login.
	ErrInvalidCredentials = errors.New("incorrect email or password")
	// ErrAccountUnverified is returned on login before the email is verified.
	ErrAccountUnverified = errors.New("account not verified")
	// ErrAccountInactive is returned on login for deactivated accounts.
	ErrAccountInactive = errors.New("inactive user")
	// ErrTokenInvalid is returned by ValidateAccess for any unusable token.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrUserStoreUnavailable wraps user store failures.
	ErrUserStoreUnavailable = errors.New("user store unavailable")
	// ErrEngineNotReady is returned when an Engine was not built through Builder.Build.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid config")
)

// RateLimitError is returned when the limiter rejects a request. It carries
// the time until the next token becomes available.
type RateLimitError struct {
	Route      string
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e == nil {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("%s: route %s, retry after %s", ErrRateLimited, e.Route, e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimited) hold for every RateLimitError.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
