package flows

import (
	"context"
	"time"
)

// UserRecord is the flow-local view of a stored account.
type UserRecord struct {
	ID           string
	Email        string
	PasswordHash string
	Verified     bool
	Active       bool
	OTPCode      string
	OTPExpiresAt time.Time
}

// NewUser carries the fields written by signup.
type NewUser struct {
	Email        string
	FirstName    string
	LastName     string
	University   string
	PasswordHash string
	OTPCode      string
	OTPExpiresAt time.Time
}

// UserChange mirrors the host update type. ExpectedOTP turns the write into
// a compare-and-clear on the stored code.
type UserChange struct {
	PasswordHash *string
	Verified     *bool
	OTPCode      *string
	OTPExpiresAt *time.Time
	ExpectedOTP  *string
}

// AccessToken is the flow-local token response shape.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// Base groups the dependencies every flow shares. The host fills it once per
// call; normalizeBase replaces nil hooks with no-ops.
type Base struct {
	Now func() time.Time

	// CheckRate returns nil when the request may proceed and a rate-limit
	// error otherwise. It never returns limiter store failures.
	CheckRate     func(context.Context, string) error
	MapStoreError func(error) error

	FindUser   func(context.Context, string) (UserRecord, error)
	UpdateUser func(context.Context, string, UserChange) (UserRecord, error)

	MetricInc     func(int)
	EmitAudit     func(context.Context, string, bool, string, error, func() map[string]string)
	EmitRateLimit func(context.Context, string, string)
	MailFailed    func(context.Context, string, string, error)
}

func normalizeBase(b *Base) {
	if b.Now == nil {
		b.Now = time.Now
	}
	if b.MapStoreError == nil {
		b.MapStoreError = func(err error) error { return err }
	}
	if b.MetricInc == nil {
		b.MetricInc = func(int) {}
	}
	if b.EmitAudit == nil {
		b.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if b.EmitRateLimit == nil {
		b.EmitRateLimit = func(context.Context, string, string) {}
	}
	if b.MailFailed == nil {
		b.MailFailed = func(context.Context, string, string, error) {}
	}
}

func ptr[T any](v T) *T { return &v }
