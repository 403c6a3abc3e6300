// Package config loads the authgate service configuration from an optional
// YAML file, a .env file and the process environment, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/mail"
)

const (
	UserStoreMemory = "memory"
	UserStoreRedis  = "redis"
)

type Server struct {
	Addr              string `yaml:"addr"`
	ReadTimeoutMS     int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS    int    `yaml:"write_timeout_ms"`
	IdleTimeoutMS     int    `yaml:"idle_timeout_ms"`
	RequestTimeoutMS  int    `yaml:"request_timeout_ms"`
	MaxBodyBytes      int64  `yaml:"max_body_bytes"`
	TrustProxyHeaders bool   `yaml:"trust_proxy_headers"`
}

type Observability struct {
	LogLevel       string `yaml:"log_level"`       // "debug","info","warn","error"
	PrometheusPath string `yaml:"prometheus_path"` // e.g. "/metrics"
	AuditLog       bool   `yaml:"audit_log"`
}

type Redis struct {
	// URL is a redis:// or rediss:// URL. Empty disables rate limiting.
	URL string `yaml:"url"`
}

type Token struct {
	Secret                   string `yaml:"secret"`
	Algorithm                string `yaml:"algorithm"`
	AccessTokenExpireMinutes int    `yaml:"access_token_expire_minutes"`
	Issuer                   string `yaml:"issuer"`
	Audience                 string `yaml:"audience"`
}

type SMTP struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	TLS       *bool  `yaml:"tls"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

type RateLimit struct {
	// Policies override the built-in per-route policies by route id.
	Policies       map[string]authgate.RatePolicy `yaml:"policies"`
	StoreTimeoutMS int                            `yaml:"store_timeout_ms"`
}

type Signup struct {
	AllowedUniversities []string `yaml:"allowed_universities"`
}

type Root struct {
	Server        Server        `yaml:"server"`
	Observability Observability `yaml:"observability"`
	Redis         Redis         `yaml:"redis"`
	UserStore     string        `yaml:"user_store"`
	Token         Token         `yaml:"token"`
	SMTP          SMTP          `yaml:"smtp"`
	RateLimit     RateLimit     `yaml:"rate_limit"`
	Signup        Signup        `yaml:"signup"`
}

func (s Server) ReadTimeout() time.Duration {
	if s.ReadTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s Server) WriteTimeout() time.Duration {
	if s.WriteTimeoutMS == 0 {
		return 10 * time.Second
	}
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (s Server) IdleTimeout() time.Duration {
	if s.IdleTimeoutMS == 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IdleTimeoutMS) * time.Millisecond
}

func (s Server) RequestTimeout() time.Duration {
	if s.RequestTimeoutMS == 0 {
		return 15 * time.Second
	}
	return time.Duration(s.RequestTimeoutMS) * time.Millisecond
}

func (s Server) MaxBody() int64 {
	if s.MaxBodyBytes == 0 {
		return 1 << 20
	}
	return s.MaxBodyBytes
} // default 1MB

// Load reads path when it is non-empty, then .env, then the environment.
func Load(path string) (*Root, error) {
	var cfg Root
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Root) error {
	setString(&cfg.Server.Addr, "AUTHGATE_ADDR")
	setString(&cfg.Observability.LogLevel, "LOG_LEVEL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.UserStore, "USER_STORE")
	setString(&cfg.Token.Secret, "SECRET_KEY")
	setString(&cfg.Token.Algorithm, "ALGORITHM")
	setString(&cfg.SMTP.Host, "SMTP_HOST")
	setString(&cfg.SMTP.User, "SMTP_USER")
	setString(&cfg.SMTP.Password, "SMTP_PASSWORD")
	setString(&cfg.SMTP.FromEmail, "EMAILS_FROM_EMAIL")
	setString(&cfg.SMTP.FromName, "EMAILS_FROM_NAME")

	if err := setInt(&cfg.Token.AccessTokenExpireMinutes, "ACCESS_TOKEN_EXPIRE_MINUTES"); err != nil {
		return err
	}
	if err := setInt(&cfg.SMTP.Port, "SMTP_PORT"); err != nil {
		return err
	}
	if v, ok := lookup("SMTP_TLS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SMTP_TLS: %w", err)
		}
		cfg.SMTP.TLS = &b
	}
	if v, ok := lookup("AUDIT_LOG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid AUDIT_LOG: %w", err)
		}
		cfg.Observability.AuditLog = b
	}
	if v, ok := lookup("TRUST_PROXY_HEADERS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TRUST_PROXY_HEADERS: %w", err)
		}
		cfg.Server.TrustProxyHeaders = b
	}
	return nil
}

func applyDefaults(cfg *Root) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}
	if cfg.UserStore == "" {
		cfg.UserStore = UserStoreMemory
	}
	cfg.UserStore = strings.ToLower(cfg.UserStore)
	if cfg.Token.Algorithm == "" {
		cfg.Token.Algorithm = "HS256"
	}
	if cfg.Token.AccessTokenExpireMinutes == 0 {
		cfg.Token.AccessTokenExpireMinutes = 30
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.TLS == nil {
		on := true
		cfg.SMTP.TLS = &on
	}
	if cfg.SMTP.FromName == "" {
		cfg.SMTP.FromName = "Unibuy"
	}
}

// Validate checks what the engine cannot check itself.
func (c *Root) Validate() error {
	switch c.UserStore {
	case UserStoreMemory:
	case UserStoreRedis:
		if c.Redis.URL == "" {
			return errors.New("user_store redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("user_store must be %q or %q, got %q", UserStoreMemory, UserStoreRedis, c.UserStore)
	}
	if c.Token.Secret == "" {
		return errors.New("SECRET_KEY is required")
	}
	if c.Token.AccessTokenExpireMinutes < 0 {
		return errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be > 0")
	}
	if c.SMTP.Host != "" && c.SMTP.FromEmail == "" {
		return errors.New("EMAILS_FROM_EMAIL is required when SMTP_HOST is set")
	}
	if c.RateLimit.StoreTimeoutMS < 0 {
		return errors.New("rate_limit store_timeout_ms must be >= 0")
	}
	return nil
}

// EngineConfig overlays the file and environment settings on
// authgate.DefaultConfig.
func (c *Root) EngineConfig() authgate.Config {
	ec := authgate.DefaultConfig()

	for route, p := range c.RateLimit.Policies {
		ec.RateLimit.Policies[route] = p
	}
	if c.RateLimit.StoreTimeoutMS > 0 {
		ec.RateLimit.StoreTimeout = time.Duration(c.RateLimit.StoreTimeoutMS) * time.Millisecond
	}

	ec.Token.Secret = []byte(c.Token.Secret)
	ec.Token.Algorithm = strings.ToUpper(c.Token.Algorithm)
	ec.Token.AccessTTL = time.Duration(c.Token.AccessTokenExpireMinutes) * time.Minute
	ec.Token.Issuer = c.Token.Issuer
	ec.Token.Audience = c.Token.Audience

	if len(c.Signup.AllowedUniversities) > 0 {
		ec.Signup.AllowedUniversities = append([]string(nil), c.Signup.AllowedUniversities...)
	}
	ec.Mail.Brand = c.SMTP.FromName
	// The audit log sink runs off the request path.
	ec.Audit.Async = c.Observability.AuditLog
	return ec
}

// SMTPConfig reports the SMTP transport settings and whether SMTP is
// configured at all.
func (c *Root) SMTPConfig() (mail.SMTPConfig, bool) {
	if c.SMTP.Host == "" {
		return mail.SMTPConfig{}, false
	}
	return mail.SMTPConfig{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.User,
		Password: c.SMTP.Password,
		From:     c.SMTP.FromEmail,
		FromName: c.SMTP.FromName,
		StartTLS: c.SMTP.TLS != nil && *c.SMTP.TLS,
	}, true
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
