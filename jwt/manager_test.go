package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newEdManager(t *testing.T) *Manager {
	t.Helper()
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "siteauth",
		Audience:      "admin",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func testSubject() Subject {
	return Subject{
		UserID:    "u-1",
		SessionID: "s-1",
		Email:     "editor@example.com",
		Role:      "EDITOR",
	}
}

func TestCreateAndParseAccess(t *testing.T) {
	m := newEdManager(t)

	sub := testSubject()
	sub.RequirePasswordReset = true
	tok, exp, err := m.CreateAccess(sub)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if until := time.Until(exp); until <= 14*time.Minute || until > 15*time.Minute {
		t.Fatalf("unexpected expiry distance %v", until)
	}

	claims, err := m.ParseAccess(tok)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if claims.UID != "u-1" || claims.SID != "s-1" || claims.Role != "EDITOR" || claims.Email != "editor@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.RequirePasswordReset {
		t.Fatal("expected reset flag to round-trip")
	}
}

func TestCreateAccessRequiresIDs(t *testing.T) {
	m := newEdManager(t)
	if _, _, err := m.CreateAccess(Subject{UserID: "u-1"}); err != ErrSubjectIncomplete {
		t.Fatalf("expected ErrSubjectIncomplete, got %v", err)
	}
}

func TestParseAccessRejectsExpired(t *testing.T) {
	m := newEdManager(t)
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, _, err := m.CreateAccess(testSubject())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	m.now = time.Now
	if _, err := m.ParseAccess(tok); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{UID: "u", SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessRejectsTamperedAndForeign(t *testing.T) {
	m := newEdManager(t)
	other := newEdManager(t)

	tok, _, err := m.CreateAccess(testSubject())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if _, err := other.ParseAccess(tok); err == nil {
		t.Fatal("token signed by another key must be rejected")
	}

	sub := testSubject()
	sub.Role = "ADMIN"
	escalated, _, err := m.CreateAccess(sub)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	parts := strings.Split(tok, ".")
	parts[1] = strings.Split(escalated, ".")[1]
	if _, err := m.ParseAccess(strings.Join(parts, ".")); err == nil {
		t.Fatal("tampered payload must be rejected")
	}
	if _, err := m.ParseAccess("not-a-jwt"); err == nil {
		t.Fatal("garbage must be rejected")
	}
}

func TestParseAccessIssuerAudience(t *testing.T) {
	_, priv := newEdKeys(t)
	issue, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "other",
		Audience:      "admin",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	verify, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "siteauth",
		Audience:      "admin",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok, _, err := issue.CreateAccess(testSubject())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if _, err := verify.ParseAccess(tok); err == nil {
		t.Fatal("expected issuer mismatch to be rejected")
	}
}

func TestHS256RoundTripAndKeyLength(t *testing.T) {
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short hs256 key to be rejected")
	}

	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		KeyID:         "k1",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	tok, _, err := m.CreateAccess(testSubject())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if _, err := m.ParseAccess(tok); err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
}

func TestVerifyKeysRotation(t *testing.T) {
	oldPub, oldPriv := newEdKeys(t)
	newPub, newPriv := newEdKeys(t)

	signer, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    oldPriv,
		PublicKey:     oldPub,
		KeyID:         "old",
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	tok, _, err := signer.CreateAccess(testSubject())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	rotated, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    newPriv,
		KeyID:         "new",
		VerifyKeys:    map[string][]byte{"old": oldPub, "new": newPub},
	})
	if err != nil {
		t.Fatalf("new rotated manager: %v", err)
	}
	if _, err := rotated.ParseAccess(tok); err != nil {
		t.Fatalf("token signed by retired kid must still verify: %v", err)
	}
}

func TestVerifyOnlyManagerCannotSign(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, _, err := m.CreateAccess(testSubject()); err != ErrNoSigningKey {
		t.Fatalf("expected ErrNoSigningKey, got %v", err)
	}
}

func TestEd25519PublicKeyDerivedFromPrivate(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	tok, _, err := m.CreateAccess(testSubject())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if _, err := m.ParseAccess(tok); err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
}

func TestUnknownKIDRejected(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	signer, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: key, KeyID: "a"})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: key, KeyID: "b"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	tok, _, err := signer.CreateAccess(testSubject())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if _, err := verifier.ParseAccess(tok); err == nil {
		t.Fatal("token with an unknown kid must be rejected")
	}
}
