package authgate

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authgate/internal/bucket"
	"github.com/MrEthical07/authgate/internal/limiters"
	"github.com/MrEthical07/authgate/mail"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/token"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     UserStore
	mailer    Mailer
	hasher    PasswordHasher
	tokens    TokenIssuer
	auditSink AuditSink

	logger zerolog.Logger
	now    func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig and a no-op logger.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis enables the distributed limiter. Without a client every limiter
// check is allowed for the lifetime of the Engine. Clients should be created
// with MaxRetries set to -1 so a timed out call is never replayed.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

// WithMailer overrides the default mailer, which logs instead of sending.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithPasswordHasher overrides the Argon2id hasher built from
// Config.Password.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithTokenIssuer overrides the JWT issuer built from Config.Token.
func (b *Builder) WithTokenIssuer(t TokenIssuer) *Builder {
	b.tokens = t
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for code expiry, limiter time and audit
// timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the config and assembles the Engine. A Builder can be
// built once. Without a Redis client the limiter is disabled and every
// check is allowed.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if b.users == nil {
		return nil, errors.New("user store required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- PASSWORDS --------
	hasher := b.hasher
	if hasher == nil {
		argon, err := password.NewArgon2(password.Config{
			Memory:           cfg.Password.Memory,
			Time:             cfg.Password.Time,
			Parallelism:      cfg.Password.Parallelism,
			SaltLength:       cfg.Password.SaltLength,
			KeyLength:        cfg.Password.KeyLength,
			MinPasswordBytes: cfg.Password.MinLength,
			MaxPasswordBytes: cfg.Password.MaxLength,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		hasher = argon
	}

	// -------- TOKENS --------
	tokens := b.tokens
	if tokens == nil {
		mgr, err := token.NewManager(token.Config{
			Secret:    cfg.Token.Secret,
			Algorithm: cfg.Token.Algorithm,
			AccessTTL: cfg.Token.AccessTTL,
			Issuer:    cfg.Token.Issuer,
			Audience:  cfg.Token.Audience,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		tokens = mgr
	}

	// -------- MAIL --------
	mailer := b.mailer
	if mailer == nil {
		mailer = mail.NewSender(mail.NewLogTransport(b.logger), cfg.Mail.Brand, cfg.OTP.TTL)
	}

	// -------- RATE LIMITER --------
	metrics := NewMetrics(cfg.Metrics)

	var evaluator limiters.Evaluator
	if b.redis != nil {
		evaluator = bucket.New(b.redis)
	} else {
		b.logger.Warn().Msg("no redis client configured, rate limiting disabled")
	}

	policies := make(map[string]limiters.Policy, len(cfg.RateLimit.Policies))
	for route, p := range cfg.RateLimit.Policies {
		policies[route] = limiters.Policy{
			RequestsPerMinute: p.RequestsPerMinute,
			Capacity:          p.Capacity,
			IdleTTL:           cfg.RateLimit.IdleTTL,
		}
	}
	gate, err := limiters.NewGate(evaluator, policies,
		limiters.WithLogger(b.logger),
		limiters.WithObserver(metrics),
		limiters.WithClock(now),
		limiters.WithStoreTimeout(cfg.RateLimit.StoreTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// -------- AUDIT --------
	var (
		sink       AuditSink = NoOpSink{}
		dispatcher *auditDispatcher
	)
	if b.auditSink != nil {
		sink = b.auditSink
		if cfg.Audit.Async {
			dispatcher = newAuditDispatcher(cfg.Audit, b.auditSink)
			sink = dispatcher
		}
	}

	b.built = true

	return &Engine{
		config:     cfg,
		gate:       gate,
		users:      b.users,
		mailer:     mailer,
		hasher:     hasher,
		tokens:     tokens,
		audit:      sink,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     b.logger,
		now:        now,
	}, nil
}
