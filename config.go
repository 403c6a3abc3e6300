package authgate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authgate/token"
)

// Config holds every tunable of the Engine. Start from DefaultConfig and
// override fields; Builder.Build validates the result.
type Config struct {
	RateLimit RateLimitConfig
	OTP       OTPConfig
	Password  PasswordConfig
	Token     TokenConfig
	Signup    SignupConfig
	Mail      MailConfig
	Metrics   MetricsConfig
	Audit     AuditConfig
}

// RatePolicy is the token bucket of one route. Capacity defaults to
// RequestsPerMinute.
type RatePolicy struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Capacity          int `yaml:"capacity"`
}

// RateLimitConfig configures the distributed limiter.
type RateLimitConfig struct {
	// Policies maps route identifiers to buckets. Every flow route must be
	// present; extra routes are available to CheckRate.
	Policies map[string]RatePolicy
	// IdleTTL is the expiry of an untouched bucket.
	IdleTTL time.Duration
	// StoreTimeout bounds each limiter round-trip. Zero relies on the
	// caller's context only.
	StoreTimeout time.Duration
}

// OTPConfig configures one-time codes used for verification and reset.
type OTPConfig struct {
	Digits int
	TTL    time.Duration
}

// PasswordConfig configures the default Argon2id hasher.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

// TokenConfig configures the default access token issuer.
type TokenConfig struct {
	Secret    []byte
	Algorithm string
	AccessTTL time.Duration
	Issuer    string
	Audience  string
}

// SignupConfig constrains signup input.
type SignupConfig struct {
	// AllowedUniversities is the accepted set for the university field. An
	// empty list accepts any non-empty value.
	AllowedUniversities []string
	MaxNameLength       int
}

// MailConfig configures message rendering.
type MailConfig struct {
	Brand string
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// AuditConfig controls how events reach the AuditSink. The zero value
// calls the sink on the request goroutine.
type AuditConfig struct {
	Async      bool
	BufferSize int
	DropIfFull bool
}

// flowRoutes must each have a policy.
var flowRoutes = []string{
	RouteSignup,
	RouteVerifyOTP,
	RouteLogin,
	RouteResendOTP,
	RouteForgotPassword,
	RouteResetPassword,
	RouteMe,
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RateLimit: RateLimitConfig{
			Policies: map[string]RatePolicy{
				RouteSignup:         {RequestsPerMinute: 5},
				RouteLogin:          {RequestsPerMinute: 5},
				RouteResendOTP:      {RequestsPerMinute: 3},
				RouteVerifyOTP:      {RequestsPerMinute: 10},
				RouteForgotPassword: {RequestsPerMinute: 3},
				RouteResetPassword:  {RequestsPerMinute: 5},
				RouteMe:             {RequestsPerMinute: 60},
			},
			IdleTTL:      time.Hour,
			StoreTimeout: 500 * time.Millisecond,
		},
		OTP: OTPConfig{
			Digits: 6,
			TTL:    5 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			MaxLength:      1024,
			UpgradeOnLogin: true,
		},
		Token: TokenConfig{
			Algorithm: token.AlgHS256,
			AccessTTL: 30 * time.Minute,
		},
		Signup: SignupConfig{
			AllowedUniversities: []string{
				"University of Porthacourt (UNIPORT)",
				"Rivers State University (RSU)",
			},
			MaxNameLength: 100,
		},
		Mail: MailConfig{
			Brand: "Unibuy",
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.RateLimit.Policies != nil {
		out.RateLimit.Policies = make(map[string]RatePolicy, len(cfg.RateLimit.Policies))
		for k, v := range cfg.RateLimit.Policies {
			out.RateLimit.Policies[k] = v
		}
	}
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	if cfg.Signup.AllowedUniversities != nil {
		out.Signup.AllowedUniversities = append([]string(nil), cfg.Signup.AllowedUniversities...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid field. Token secrets are checked when
// the default issuer is built.
func (c *Config) Validate() error {
	// Rate limit
	if len(c.RateLimit.Policies) == 0 {
		return errors.New("RateLimit Policies must not be empty")
	}
	for route, p := range c.RateLimit.Policies {
		if route == "" || strings.Contains(route, ":") {
			return fmt.Errorf("RateLimit route %q must be non-empty and must not contain ':'", route)
		}
		if p.RequestsPerMinute <= 0 {
			return fmt.Errorf("RateLimit %s RequestsPerMinute must be > 0", route)
		}
		if p.Capacity < 0 {
			return fmt.Errorf("RateLimit %s Capacity must be >= 0", route)
		}
	}
	for _, route := range flowRoutes {
		if _, ok := c.RateLimit.Policies[route]; !ok {
			return fmt.Errorf("RateLimit policy for route %s is required", route)
		}
	}
	if c.RateLimit.IdleTTL < time.Second {
		return errors.New("RateLimit IdleTTL must be >= 1s")
	}
	if c.RateLimit.StoreTimeout < 0 {
		return errors.New("RateLimit StoreTimeout must be >= 0")
	}

	// OTP
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}

	// Password
	if c.Password.MinLength <= 0 {
		return errors.New("Password MinLength must be > 0")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Token
	switch strings.ToUpper(c.Token.Algorithm) {
	case token.AlgHS256, token.AlgHS384, token.AlgHS512:
	default:
		return errors.New("Token Algorithm must be HS256, HS384 or HS512")
	}
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}

	// Audit
	if c.Audit.Async && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Async is set")
	}

	// Signup
	if c.Signup.MaxNameLength <= 0 {
		return errors.New("Signup MaxNameLength must be > 0")
	}
	for _, u := range c.Signup.AllowedUniversities {
		if strings.TrimSpace(u) == "" {
			return errors.New("Signup AllowedUniversities must not contain empty values")
		}
	}

	return nil
}
