package siteauth

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/MrEthical07/siteauth/internal/audit"
	"github.com/MrEthical07/siteauth/internal/stores"
	"github.com/MrEthical07/siteauth/jwt"
	"github.com/MrEthical07/siteauth/password"
	"github.com/MrEthical07/siteauth/ratelimit"
	"github.com/MrEthical07/siteauth/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userStore    UserStore
	mailer       Mailer
	logger       *slog.Logger
	auditSink    AuditSink
	hasher       password.Hasher
	limiterStore ratelimit.Store

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions, reset tokens, OTP codes and,
// when RateLimit.Backend is "redis", the limiter counters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.userStore = store
	return b
}

// WithMailer sets the outbound mail transport. Without one, reset links and
// OTP codes cannot be delivered.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithHasher overrides the hasher selected by Config.Password.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithRateLimitStore overrides the counter store selected by
// Config.RateLimit.Backend.
func (b *Builder) WithRateLimitStore(store ratelimit.Store) *Builder {
	b.limiterStore = store
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.userStore == nil {
		return nil, errors.New("user store required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		sessionStore: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		resetStore:   stores.NewPasswordResetStore(b.redis, cfg.PasswordReset.RedisPrefix),
		otpStore:     stores.NewOTPStore(b.redis, cfg.OTP.RedisPrefix),
		userStore:    b.userStore,
		mailer:       b.mailer,
		logger:       logger.With("component", "siteauth"),
		metrics:      NewMetrics(cfg.Metrics),

		enumerationDelay: sleepEnumerationDelay,
	}

	// -------- AUDIT --------
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     engine.logger,
	}, b.auditSink)

	// -------- RATE LIMITERS --------
	limiterStore := b.limiterStore
	if limiterStore == nil {
		if cfg.RateLimit.Backend == "redis" {
			limiterStore = ratelimit.NewRedisStore(b.redis)
		} else {
			limiterStore = ratelimit.NewMemoryStore()
		}
	}
	var err error
	if engine.generalLimiter, err = newLimiter(limiterStore, "general", cfg.RateLimit.General); err != nil {
		return nil, err
	}
	if engine.loginLimiter, err = newLimiter(limiterStore, "login", cfg.RateLimit.Login); err != nil {
		return nil, err
	}
	if engine.resetLimiter, err = newLimiter(limiterStore, "reset", cfg.RateLimit.Reset); err != nil {
		return nil, err
	}
	if engine.confirmLimiter, err = newLimiter(limiterStore, "reset_confirm", cfg.RateLimit.ResetConfirm); err != nil {
		return nil, err
	}

	// -------- PASSWORD --------
	hasher := b.hasher
	if hasher == nil {
		hasher, err = newHasher(cfg.Password)
		if err != nil {
			return nil, err
		}
	}
	engine.passwordHash = hasher
	if engine.dummyHash, err = hasher.Hash("siteauth-timing-equalizer"); err != nil {
		return nil, err
	}

	// -------- JWT --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		KeyID:         cfg.JWT.KeyID,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}

func newLimiter(store ratelimit.Store, name string, b RateLimitBudget) (*ratelimit.Limiter, error) {
	return ratelimit.New(store, ratelimit.Budget{Name: name, Limit: b.Limit, Window: b.Window})
}

func newHasher(cfg PasswordConfig) (password.Hasher, error) {
	if cfg.Algorithm == "bcrypt" {
		return password.NewBcrypt(cfg.BcryptCost)
	}
	return password.NewArgon2(password.Config{
		Memory:           cfg.Memory,
		Time:             cfg.Time,
		Parallelism:      cfg.Parallelism,
		SaltLength:       cfg.SaltLength,
		KeyLength:        cfg.KeyLength,
		MaxPasswordBytes: cfg.MaxBytes,
	})
}
