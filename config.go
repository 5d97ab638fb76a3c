package siteauth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/siteauth/password"
)

// Config is the full Engine configuration. Build clones it; later changes to
// the caller's copy have no effect.
type Config struct {
	JWT           JWTConfig
	Session       SessionConfig
	Password      PasswordConfig
	PasswordReset PasswordResetConfig
	OTP           OTPConfig
	RateLimit     RateLimitConfig
	Cookie        CookieConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access tokens. SigningMethod is "ed25519" (default) or
// "hs256"; for hs256 PrivateKey is the shared secret.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls refresh lifetime. Each refresh extends the session
// by RefreshTTL but never past CreatedAt+AbsoluteLifetime.
type SessionConfig struct {
	RedisPrefix      string
	RefreshTTL       time.Duration
	AbsoluteLifetime time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects and tunes the hasher. Algorithm is "argon2id"
// (default) or "bcrypt".
type PasswordConfig struct {
	Algorithm      string
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MaxBytes       int
	BcryptCost     int
	UpgradeOnLogin bool
	Policy         password.Policy
}

// PasswordResetConfig controls the forgot-password flow. ResetURL, when set,
// receives the raw token as its "token" query parameter in the emailed link.
//
// By default the reset email is sent in the background, bounded by
// DeliveryTimeout, so the response does not depend on whether the address is
// registered. RequireDelivery sends inline and fails the request when the
// mail cannot be sent; unknown addresses are then padded by the observed
// delivery latency.
type PasswordResetConfig struct {
	Enabled         bool
	TokenTTL        time.Duration
	RedisPrefix     string
	RequireDelivery bool
	DeliveryTimeout time.Duration
	ResetURL        string
}

// OTPConfig controls emailed one-time codes.
type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
	RedisPrefix string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitBudget is one fixed-window budget.
type RateLimitBudget struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig selects the counter backend: "memory" (single process) or
// "redis" (shared).
type RateLimitConfig struct {
	Backend      string
	General      RateLimitBudget
	Login        RateLimitBudget
	Reset        RateLimitBudget
	ResetConfirm RateLimitBudget
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig describes the session cookies written by the HTTP layer.
type CookieConfig struct {
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
		},
		Session: SessionConfig{
			RedisPrefix:      "ss",
			RefreshTTL:       7 * 24 * time.Hour,
			AbsoluteLifetime: 30 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Algorithm:      "argon2id",
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MaxBytes:       password.DefaultMaxPasswordBytes,
			UpgradeOnLogin: true,
			Policy:         password.DefaultPolicy(),
		},
		PasswordReset: PasswordResetConfig{
			Enabled:         true,
			TokenTTL:        time.Hour,
			RedisPrefix:     "apr",
			DeliveryTimeout: 30 * time.Second,
		},
		OTP: OTPConfig{
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
			RedisPrefix: "aotp",
		},
		RateLimit: RateLimitConfig{
			Backend:      "memory",
			General:      RateLimitBudget{Limit: 5, Window: time.Minute},
			Login:        RateLimitBudget{Limit: 5, Window: 15 * time.Minute},
			Reset:        RateLimitBudget{Limit: 3, Window: time.Hour},
			ResetConfirm: RateLimitBudget{Limit: 10, Window: time.Hour},
		},
		Cookie: CookieConfig{
			Path:     "/",
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// DefaultConfig returns the production defaults. Keys still have to be set.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
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

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}

	if c.Session.RefreshTTL <= 0 {
		return errors.New("Session RefreshTTL must be > 0")
	}
	if c.Session.AbsoluteLifetime < 0 {
		return errors.New("Session AbsoluteLifetime must be >= 0")
	}
	if c.Session.AbsoluteLifetime > 0 && c.Session.AbsoluteLifetime < c.Session.RefreshTTL {
		return errors.New("Session AbsoluteLifetime must be >= RefreshTTL")
	}
	if c.Session.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Session RefreshTTL must exceed JWT AccessTTL")
	}

	switch c.Password.Algorithm {
	case "argon2id", "":
		if c.Password.Memory < 8192 {
			return errors.New("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 {
			return errors.New("Password Time must be >= 1")
		}
		if c.Password.Parallelism < 1 {
			return errors.New("Password Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("Password SaltLength must be >= 16")
		}
		if c.Password.KeyLength < 16 {
			return errors.New("Password KeyLength must be >= 16")
		}
	case "bcrypt":
		if c.Password.BcryptCost != 0 && (c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31) {
			return errors.New("Password BcryptCost must be between 4 and 31")
		}
	default:
		return errors.New("Password Algorithm must be 'argon2id' or 'bcrypt'")
	}
	if c.Password.MaxBytes < 0 {
		return errors.New("Password MaxBytes must be >= 0")
	}

	if c.PasswordReset.Enabled && c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.PasswordReset.Enabled && !c.PasswordReset.RequireDelivery && c.PasswordReset.DeliveryTimeout <= 0 {
		return errors.New("PasswordReset DeliveryTimeout must be > 0")
	}

	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}

	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return errors.New("RateLimit Backend must be 'memory' or 'redis'")
	}
	if err := validateBudget("General", c.RateLimit.General); err != nil {
		return err
	}
	if err := validateBudget("Login", c.RateLimit.Login); err != nil {
		return err
	}
	if err := validateBudget("Reset", c.RateLimit.Reset); err != nil {
		return err
	}
	if err := validateBudget("ResetConfirm", c.RateLimit.ResetConfirm); err != nil {
		return err
	}

	if c.Cookie.SameSite == http.SameSiteNoneMode && !c.Cookie.Secure {
		return errors.New("Cookie SameSite=None requires Secure")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func validateBudget(name string, b RateLimitBudget) error {
	if b.Limit <= 0 || b.Window <= 0 {
		return errors.New("RateLimit " + name + " budget must have Limit > 0 and Window > 0")
	}
	return nil
}
