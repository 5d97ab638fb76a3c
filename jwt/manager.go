package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWS algorithm used for access tokens.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	// ErrSubjectIncomplete is returned by CreateAccess when user or session ID is empty.
	ErrSubjectIncomplete = errors.New("access subject requires user and session id")
	// ErrNoSigningKey is returned by CreateAccess on a verify-only Manager.
	ErrNoSigningKey = errors.New("manager has no signing key")

	errUnknownKID = errors.New("unknown kid")
)

// Config controls issuance and verification. VerifyKeys, when set, maps kid
// values to verification keys so signing keys can rotate.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Manager issues and parses access tokens. Keys are decoded once by
// NewManager.
type Manager struct {
	config  Config
	method  jwt.SigningMethod
	signKey any
	verify  map[string]any
	parser  *jwt.Parser
	now     func() time.Time
}

// AccessClaims is the access-token payload. The session ID lets the server
// re-check revocation on every request.
type AccessClaims struct {
	UID                  string `json:"uid"`
	SID                  string `json:"sid"`
	Email                string `json:"email,omitempty"`
	Role                 string `json:"role"`
	RequirePasswordReset bool   `json:"rpr,omitempty"`
	jwt.RegisteredClaims
}

// Subject is what an access token asserts.
type Subject struct {
	UserID               string
	SessionID            string
	Email                string
	Role                 string
	RequirePasswordReset bool
}

// NewManager validates cfg, decodes its keys and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.AccessTTL <= 0:
		return nil, errors.New("invalid TTL configuration")
	case cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute:
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg, now: time.Now}
	if err := m.loadKeys(); err != nil {
		return nil, err
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := m.verify[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.RequireIAT {
		opts = append(opts, jwt.WithIssuedAt())
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(opts...)

	return m, nil
}

// loadKeys fills method, signKey and the kid-indexed verify set. Without
// VerifyKeys the set holds a single entry under KeyID (possibly "").
func (m *Manager) loadKeys() error {
	cfg := m.config
	m.verify = make(map[string]any, len(cfg.VerifyKeys)+1)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return errors.New("hs256 requires a key of at least 32 bytes")
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		for kid, key := range cfg.VerifyKeys {
			m.verify[kid] = key
		}
		if len(cfg.VerifyKeys) == 0 {
			m.verify[cfg.KeyID] = cfg.PrivateKey
		}

	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		var pub ed25519.PublicKey
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return err
			}
			m.signKey = priv
			pub = priv.Public().(ed25519.PublicKey)
		}
		if len(cfg.PublicKey) > 0 {
			p, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return err
			}
			pub = p
		}
		for kid, key := range cfg.VerifyKeys {
			p, err := parseEdPublicKey(key)
			if err != nil {
				return fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
			m.verify[kid] = p
		}
		if len(cfg.VerifyKeys) == 0 {
			if pub == nil {
				return errors.New("ed25519 requires a private, public or verify key")
			}
			m.verify[cfg.KeyID] = pub
		}

	default:
		return errors.New("unsupported signing method")
	}

	if _, ok := m.verify[""]; ok && len(cfg.VerifyKeys) > 0 {
		return errors.New("verify key map contains empty kid")
	}
	return nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// CreateAccess signs a short-lived access token for sub and returns it with
// its expiry, truncated to the second as it appears in the token.
func (m *Manager) CreateAccess(sub Subject) (string, time.Time, error) {
	if sub.UserID == "" || sub.SessionID == "" {
		return "", time.Time{}, ErrSubjectIncomplete
	}
	if m.signKey == nil {
		return "", time.Time{}, ErrNoSigningKey
	}

	now := m.now()
	exp := jwt.NewNumericDate(now.Add(m.config.AccessTTL))

	claims := AccessClaims{
		UID:                  sub.UserID,
		SID:                  sub.SessionID,
		Email:                sub.Email,
		Role:                 sub.Role,
		RequirePasswordReset: sub.RequirePasswordReset,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			ExpiresAt: exp,
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signed, err := token.SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp.Time, nil
}

// ParseAccess verifies signature, algorithm, expiry and the configured
// issuer/audience, and returns the claims. It does not consult session state.
func (m *Manager) ParseAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := m.parser.ParseWithClaims(raw, claims, m.keyFor)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UID == "" || claims.SID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil && claims.IssuedAt.After(m.now().Add(m.config.MaxFutureIAT)) {
		return nil, errors.New("token iat too far in the future")
	}
	return claims, nil
}

func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	if t.Method.Alg() != m.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)
	key, ok := m.verify[kid]
	if !ok {
		return nil, errUnknownKID
	}
	return key, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
