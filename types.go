package authgate

import (
	"context"
	"time"

	"github.com/MrEthical07/authgate/token"
)

// Route identifiers used as the middle segment of limiter keys.
const (
	RouteSignup         = "signup"
	RouteVerifyOTP      = "verify-otp"
	RouteLogin          = "login"
	RouteResendOTP      = "resend-otp"
	RouteForgotPassword = "forgot-password"
	RouteResetPassword  = "reset-password"
	RouteMe             = "me"
)

// TokenTypeBearer is the token_type reported with every access token.
const TokenTypeBearer = "bearer"

// User is the account record persisted by a UserStore.
type User struct {
	ID              string
	Email           string
	FirstName       string
	LastName        string
	University      string
	PasswordHash    string
	Verified        bool
	StudentVerified bool
	Active          bool
	OTPCode         string
	OTPExpiresAt    time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UserUpdate lists the mutable fields of a User. Nil fields are left as is.
type UserUpdate struct {
	PasswordHash *string
	Verified     *bool
	OTPCode      *string
	OTPExpiresAt *time.Time

	// ExpectedOTP makes the update conditional on the stored code being equal
	// to *ExpectedOTP. On mismatch nothing is written and ErrInvalidOTP is
	// returned. This is how a code is consumed exactly once.
	ExpectedOTP *string
}

// UserStore persists accounts keyed by normalized email.
//
// FindByEmail and Update return ErrUserNotFound for unknown emails; Create
// returns ErrUserExists when the email is taken and assigns ID and
// timestamps. Other failures should wrap ErrUserStoreUnavailable.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, user User) (User, error)
	Update(ctx context.Context, email string, update UserUpdate) (User, error)
}

// Mailer delivers one-time codes.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, code string) error
	SendPasswordResetCode(ctx context.Context, to, code string) error
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// TokenIssuer issues and parses access tokens.
type TokenIssuer interface {
	Issue(subject string) (string, time.Time, error)
	Parse(tokenStr string) (*token.AccessClaims, error)
}

// SignupRequest carries the fields of a new account.
type SignupRequest struct {
	Email      string
	FirstName  string
	LastName   string
	University string
	Password   string
}

// TokenResult is returned by successful VerifyOTP and Login calls.
type TokenResult struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// ResendResult reports whether a new verification code was sent.
type ResendResult struct {
	AlreadyVerified bool
}

// AccessClaims is the validated content of an access token.
type AccessClaims struct {
	Subject   string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Profile is the public view of a User.
type Profile struct {
	ID              string
	Email           string
	FirstName       string
	LastName        string
	University      string
	Verified        bool
	StudentVerified bool
	Active          bool
	CreatedAt       time.Time
}

// RateDecision is the limiter verdict for one request.
type RateDecision struct {
	Allowed    bool
	Route      string
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	// Enforced is false when the limiter is disabled, failed open or does
	// not know the route. Limit and Remaining are zero in that case.
	Enforced bool
}

func profileFromUser(u User) Profile {
	return Profile{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		University:      u.University,
		Verified:        u.Verified,
		StudentVerified: u.StudentVerified,
		Active:          u.Active,
		CreatedAt:       u.CreatedAt,
	}
}
