package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	secretSize = 32
	otpDigits  = 6
)

// ErrMalformed is returned by Validate for values that cannot have come from Generate.
var ErrMalformed = errors.New("malformed token")

// Generate returns a new 256-bit random token encoded as unpadded base64url.
func Generate() (string, error) {
	var secret [secretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(secret[:]), nil
}

// Validate performs a cheap shape check before a presented token is hashed
// and looked up. It never inspects stored state.
func Validate(tok string) error {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) != secretSize {
		return ErrMalformed
	}
	return nil
}

// Hash returns the hex SHA-256 digest of tok.
func Hash(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// GenerateOTP returns a uniformly distributed 6 digit code. Leading zeros are kept.
func GenerateOTP() (string, error) {
	var b strings.Builder
	b.Grow(otpDigits)

	max := big.NewInt(10)
	for i := 0; i < otpDigits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

// NewID returns a random record identifier.
func NewID() string {
	return uuid.NewString()
}
