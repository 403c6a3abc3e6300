package authgate

import (
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, route := range flowRoutes {
		if _, ok := cfg.RateLimit.Policies[route]; !ok {
			t.Fatalf("default config missing policy for %s", route)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "extra route allowed",
			mutate: func(c *Config) {
				c.RateLimit.Policies["profile-update"] = RatePolicy{RequestsPerMinute: 20, Capacity: 40}
			},
			wantValid: true,
		},
		{
			name: "empty policies",
			mutate: func(c *Config) {
				c.RateLimit.Policies = nil
			},
			wantValid: false,
		},
		{
			name: "async audit without buffer",
			mutate: func(c *Config) {
				c.Audit = AuditConfig{Async: true}
			},
			wantValid: false,
		},
		{
			name: "route with colon",
			mutate: func(c *Config) {
				c.RateLimit.Policies["a:b"] = RatePolicy{RequestsPerMinute: 1}
			},
			wantValid: false,
		},
		{
			name: "zero requests per minute",
			mutate: func(c *Config) {
				c.RateLimit.Policies[RouteLogin] = RatePolicy{}
			},
			wantValid: false,
		},
		{
			name: "negative capacity",
			mutate: func(c *Config) {
				c.RateLimit.Policies[RouteLogin] = RatePolicy{RequestsPerMinute: 5, Capacity: -1}
			},
			wantValid: false,
		},
		{
			name: "missing flow route",
			mutate: func(c *Config) {
				delete(c.RateLimit.Policies, RouteVerifyOTP)
			},
			wantValid: false,
		},
		{
			name: "idle ttl too short",
			mutate: func(c *Config) {
				c.RateLimit.IdleTTL = 500 * time.Millisecond
			},
			wantValid: false,
		},
		{
			name: "negative store timeout",
			mutate: func(c *Config) {
				c.RateLimit.StoreTimeout = -time.Millisecond
			},
			wantValid: false,
		},
		{
			name: "zero store timeout",
			mutate: func(c *Config) {
				c.RateLimit.StoreTimeout = 0
			},
			wantValid: true,
		},
		{
			name: "otp digits too few",
			mutate: func(c *Config) {
				c.OTP.Digits = 3
			},
			wantValid: false,
		},
		{
			name: "otp ttl zero",
			mutate: func(c *Config) {
				c.OTP.TTL = 0
			},
			wantValid: false,
		},
		{
			name: "password max below min",
			mutate: func(c *Config) {
				c.Password.MinLength = 12
				c.Password.MaxLength = 10
			},
			wantValid: false,
		},
		{
			name: "lowercase algorithm",
			mutate: func(c *Config) {
				c.Token.Algorithm = "hs512"
			},
			wantValid: true,
		},
		{
			name: "asymmetric algorithm",
			mutate: func(c *Config) {
				c.Token.Algorithm = "RS256"
			},
			wantValid: false,
		},
		{
			name: "zero access ttl",
			mutate: func(c *Config) {
				c.Token.AccessTTL = 0
			},
			wantValid: false,
		},
		{
			name: "blank university",
			mutate: func(c *Config) {
				c.Signup.AllowedUniversities = append(c.Signup.AllowedUniversities, "  ")
			},
			wantValid: false,
		},
		{
			name: "any university",
			mutate: func(c *Config) {
				c.Signup.AllowedUniversities = nil
			},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatalf("expected invalid config")
			}
		})
	}
}

func TestCloneConfigIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef")

	clone := cloneConfig(cfg)
	clone.RateLimit.Policies[RouteLogin] = RatePolicy{RequestsPerMinute: 99}
	clone.Token.Secret[0] = 'X'
	clone.Signup.AllowedUniversities[0] = "changed"

	if cfg.RateLimit.Policies[RouteLogin].RequestsPerMinute != 5 {
		t.Fatalf("policies shared with clone")
	}
	if cfg.Token.Secret[0] != '0' {
		t.Fatalf("secret shared with clone")
	}
	if cfg.Signup.AllowedUniversities[0] == "changed" {
		t.Fatalf("universities shared with clone")
	}
}
