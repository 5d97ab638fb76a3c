// Package config loads process configuration from the environment and an
// optional .env file using Viper, and maps it onto siteauth.Config.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/siteauth"
	"github.com/spf13/viper"
)

// Config holds every setting of the siteauth server process.
type Config struct {
	// HTTPAddr is the listen address (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// RedisURL is a redis:// URL for sessions, tokens and shared rate limits.
	RedisURL string `mapstructure:"REDIS_URL"`
	// DatabaseURL is the Postgres DSN of the user table.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// MigrateOnStart applies embedded migrations before serving.
	MigrateOnStart bool   `mapstructure:"MIGRATE_ON_START"`
	Env            string `mapstructure:"APP_ENV"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	LogOutput string `mapstructure:"LOG_OUTPUT"`

	// JWTSigningMethod is "ed25519" or "hs256".
	JWTSigningMethod string `mapstructure:"JWT_SIGNING_METHOD"`
	// JWTPrivateKey is a PEM block, a path to one, or the hs256 secret.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is a PEM block or a path to one; unused for hs256.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`

	SessionRefreshTTL       string `mapstructure:"SESSION_REFRESH_TTL"`
	SessionAbsoluteLifetime string `mapstructure:"SESSION_ABSOLUTE_LIFETIME"`

	PasswordAlgorithm string `mapstructure:"PASSWORD_ALGORITHM"`
	BcryptCost        int    `mapstructure:"BCRYPT_COST"`

	ResetEnabled         bool   `mapstructure:"RESET_ENABLED"`
	ResetURL             string `mapstructure:"RESET_URL"`
	ResetTokenTTL        string `mapstructure:"RESET_TOKEN_TTL"`
	ResetRequireDelivery bool   `mapstructure:"RESET_REQUIRE_DELIVERY"`

	OTPTTL         string `mapstructure:"OTP_TTL"`
	OTPMaxAttempts int    `mapstructure:"OTP_MAX_ATTEMPTS"`

	// RateLimitBackend is "memory" or "redis".
	RateLimitBackend string `mapstructure:"RATE_LIMIT_BACKEND"`

	CookieDomain   string `mapstructure:"COOKIE_DOMAIN"`
	CookieSecure   bool   `mapstructure:"COOKIE_SECURE"`
	CookieSameSite string `mapstructure:"COOKIE_SAMESITE"`

	AuditEnabled   bool `mapstructure:"AUDIT_ENABLED"`
	MetricsLatency bool `mapstructure:"METRICS_LATENCY"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Environment variables override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MIGRATE_ON_START", true)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_OUTPUT", "stdout")
	v.SetDefault("JWT_SIGNING_METHOD", "ed25519")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "siteauth")
	v.SetDefault("JWT_AUDIENCE", "site")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("SESSION_REFRESH_TTL", "168h")
	v.SetDefault("SESSION_ABSOLUTE_LIFETIME", "720h")
	v.SetDefault("PASSWORD_ALGORITHM", "argon2id")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("RESET_ENABLED", true)
	v.SetDefault("RESET_URL", "")
	v.SetDefault("RESET_TOKEN_TTL", "1h")
	v.SetDefault("RESET_REQUIRE_DELIVERY", false)
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("RATE_LIMIT_BACKEND", "redis")
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("COOKIE_SAMESITE", "strict")
	v.SetDefault("AUDIT_ENABLED", true)
	v.SetDefault("METRICS_LATENCY", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("config: REDIS_URL must be set")
	}
	if !cfg.CookieSecure && cfg.Env == "production" {
		return nil, errors.New("config: COOKIE_SECURE must not be false when APP_ENV=production")
	}

	return &cfg, nil
}

// Siteauth maps the process settings onto the engine configuration. Key
// material is resolved here; the result still goes through
// siteauth.Config.Validate in Build.
func (c *Config) Siteauth() (siteauth.Config, error) {
	out := siteauth.DefaultConfig()

	var err error
	if out.JWT.AccessTTL, err = parseDuration("JWT_ACCESS_TTL", c.JWTAccessTTL); err != nil {
		return out, err
	}
	if out.Session.RefreshTTL, err = parseDuration("SESSION_REFRESH_TTL", c.SessionRefreshTTL); err != nil {
		return out, err
	}
	if out.Session.AbsoluteLifetime, err = parseDuration("SESSION_ABSOLUTE_LIFETIME", c.SessionAbsoluteLifetime); err != nil {
		return out, err
	}
	if out.PasswordReset.TokenTTL, err = parseDuration("RESET_TOKEN_TTL", c.ResetTokenTTL); err != nil {
		return out, err
	}
	if out.OTP.TTL, err = parseDuration("OTP_TTL", c.OTPTTL); err != nil {
		return out, err
	}

	out.JWT.SigningMethod = strings.ToLower(c.JWTSigningMethod)
	out.JWT.Issuer = c.JWTIssuer
	out.JWT.Audience = c.JWTAudience
	if out.JWT.PrivateKey, err = readKey(c.JWTPrivateKey); err != nil {
		return out, fmt.Errorf("config: JWT_PRIVATE_KEY: %w", err)
	}
	if out.JWT.SigningMethod != "hs256" {
		if out.JWT.PublicKey, err = readKey(c.JWTPublicKey); err != nil {
			return out, fmt.Errorf("config: JWT_PUBLIC_KEY: %w", err)
		}
	}

	out.Password.Algorithm = strings.ToLower(c.PasswordAlgorithm)
	out.Password.BcryptCost = c.BcryptCost

	out.PasswordReset.Enabled = c.ResetEnabled
	out.PasswordReset.ResetURL = c.ResetURL
	out.PasswordReset.RequireDelivery = c.ResetRequireDelivery

	out.OTP.MaxAttempts = c.OTPMaxAttempts
	out.RateLimit.Backend = strings.ToLower(c.RateLimitBackend)

	out.Cookie.Domain = c.CookieDomain
	out.Cookie.Secure = c.CookieSecure
	if out.Cookie.SameSite, err = parseSameSite(c.CookieSameSite); err != nil {
		return out, err
	}

	out.Audit.Enabled = c.AuditEnabled
	out.Metrics.EnableLatencyHistograms = c.MetricsLatency

	return out, nil
}

func parseDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive duration, got %q", name, value)
	}
	return d, nil
}

func parseSameSite(value string) (http.SameSite, error) {
	switch strings.ToLower(value) {
	case "strict", "":
		return http.SameSiteStrictMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("config: COOKIE_SAMESITE must be strict, lax or none, got %q", value)
	}
}

// readKey accepts an inline PEM block, a path to a file, or a raw secret.
func readKey(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if strings.HasPrefix(value, "-----BEGIN") {
		return []byte(value), nil
	}
	if info, err := os.Stat(value); err == nil && !info.IsDir() {
		return os.ReadFile(value)
	}
	return []byte(value), nil
}
