package password

import "errors"

// DefaultMaxPasswordBytes caps the plaintext fed into the slow hash.
const DefaultMaxPasswordBytes = 1024

var (
	// ErrEmptyPassword is returned by Hash for an empty plaintext.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned by Hash when the plaintext exceeds the configured cap.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
)

// Hasher is the one-way credential function used by the Engine.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encoded string) bool
}

// Upgrader is implemented by hashers that can tell when a stored hash was
// produced with weaker parameters than the current configuration.
type Upgrader interface {
	NeedsUpgrade(encoded string) bool
}

func checkLength(plaintext string, max int) error {
	if plaintext == "" {
		return ErrEmptyPassword
	}
	if len(plaintext) > max {
		return ErrPasswordTooLong
	}
	return nil
}
