package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

var errMalformedHash = errors.New("malformed argon2id hash")

// Config holds Argon2id cost parameters. MaxPasswordBytes defaults to
// DefaultMaxPasswordBytes when zero.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// DefaultConfig targets roughly 100-250ms per hash on commodity server cores.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return errors.New("password memory must be >= 8192 KB")
	case c.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case c.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return errors.New("password salt length must be >= 16")
	case c.KeyLength < minKeyLength:
		return errors.New("password key length must be >= 16")
	case c.MaxPasswordBytes < 0:
		return errors.New("password max bytes must be >= 0")
	}
	return nil
}

// Argon2 hashes passwords with argon2id in PHC string form:
//
//	$argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg and returns a ready hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg}, nil
}

// phc is a decoded argon2id hash string.
type phc struct {
	memory uint32
	passes uint32
	lanes  uint8
	salt   []byte
	key    []byte
}

func (p phc) derive(plaintext string) []byte {
	return argon2.IDKey([]byte(plaintext), p.salt, p.passes, p.memory, p.lanes, uint32(len(p.key)))
}

func (p phc) String() string {
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version, p.memory, p.passes, p.lanes,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

// Hash derives a hash with a fresh random salt. The plaintext is used
// byte-for-byte; no Unicode normalization is applied.
func (a *Argon2) Hash(plaintext string) (string, error) {
	if err := checkLength(plaintext, a.config.MaxPasswordBytes); err != nil {
		return "", err
	}

	p := phc{
		memory: a.config.Memory,
		passes: a.config.Time,
		lanes:  a.config.Parallelism,
		salt:   make([]byte, a.config.SaltLength),
		key:    make([]byte, a.config.KeyLength),
	}
	if _, err := io.ReadFull(rand.Reader, p.salt); err != nil {
		return "", fmt.Errorf("argon2 salt: %w", err)
	}
	p.key = p.derive(plaintext)

	return p.String(), nil
}

// Verify reports whether plaintext matches encoded. Malformed hashes and
// oversized inputs are a mismatch, never an error.
func (a *Argon2) Verify(plaintext, encoded string) bool {
	if len(plaintext) > a.config.MaxPasswordBytes {
		return false
	}
	p, err := decodePHC(encoded)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(p.derive(plaintext), p.key) == 1
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters
// than the current configuration. Unparseable hashes report true.
func (a *Argon2) NeedsUpgrade(encoded string) bool {
	p, err := decodePHC(encoded)
	if err != nil {
		return true
	}
	return p.memory < a.config.Memory ||
		p.passes < a.config.Time ||
		p.lanes < a.config.Parallelism ||
		uint32(len(p.key)) != a.config.KeyLength
}

func decodePHC(encoded string) (phc, error) {
	var p phc

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != algorithmID {
		return p, errMalformedHash
	}
	if fields[2] != "v="+strconv.Itoa(argon2.Version) {
		return p, fmt.Errorf("%w: unsupported version %q", errMalformedHash, fields[2])
	}
	if err := p.decodeParams(fields[3]); err != nil {
		return p, err
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return p, fmt.Errorf("%w: bad salt", errMalformedHash)
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil || len(p.key) < int(minKeyLength) {
		return p, fmt.Errorf("%w: bad key", errMalformedHash)
	}
	return p, nil
}

// decodeParams reads "m=..,t=..,p=..". Each key must appear exactly once;
// order is not significant.
func (p *phc) decodeParams(s string) error {
	seen := map[string]bool{}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || seen[k] {
			return fmt.Errorf("%w: bad parameter %q", errMalformedHash, pair)
		}
		seen[k] = true

		bits := 32
		if k == "p" {
			bits = 8
		}
		n, err := strconv.ParseUint(v, 10, bits)
		if err != nil {
			return fmt.Errorf("%w: bad parameter %q", errMalformedHash, pair)
		}

		switch k {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.passes = uint32(n)
		case "p":
			p.lanes = uint8(n)
		default:
			return fmt.Errorf("%w: unknown parameter %q", errMalformedHash, k)
		}
	}
	if len(seen) != 3 {
		return fmt.Errorf("%w: missing parameters", errMalformedHash)
	}
	if p.memory < minMemoryKB || p.passes < minTimeCost || p.lanes < minParallelism {
		return fmt.Errorf("%w: parameters below minimum", errMalformedHash)
	}
	return nil
}
