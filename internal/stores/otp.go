package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrOTPNotFound         = errors.New("otp record not found")
	ErrOTPExpired          = errors.New("otp expired")
	ErrOTPMismatch         = errors.New("otp mismatch")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrOTPRedisUnavailable = errors.New("otp redis unavailable")
)

// OTP record states.
const (
	OTPStatePending    = "pending"
	OTPStateVerified   = "verified"
	OTPStateSuperseded = "superseded"
	OTPStateExhausted  = "exhausted"
)

// OTPRecord is one emailed code for an email+purpose pair.
type OTPRecord struct {
	ID        string
	Email     string
	Purpose   string
	CodeHash  string
	State     string
	Attempts  int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// OTPStore persists one-time codes. Each email+purpose pair has at most one
// pending record; issuing a new code supersedes the previous one.
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewOTPStore(redisClient redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "aotp"
	}
	return &OTPStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *OTPStore) key(id string) string { return s.prefix + ":r:" + id }
func (s *OTPStore) currentKey(email, purpose string) string {
	return s.prefix + ":c:" + purpose + ":" + email
}

// Issue stores record as the current code for its email+purpose pair and
// marks the previous pending code superseded.
func (s *OTPStore) Issue(ctx context.Context, record *OTPRecord) error {
	ttl := record.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("%w: code already expired", ErrOTPExpired)
	}

	current := s.currentKey(record.Email, record.Purpose)
	key := s.key(record.ID)

	err := s.withRetry(ctx, func(tx *redis.Tx) error {
		prevID, err := tx.Get(ctx, current).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		supersede := false
		if prevID != "" {
			state, err := tx.HGet(ctx, s.key(prevID), "state").Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			supersede = state == OTPStatePending
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if supersede {
				pipe.HSet(ctx, s.key(prevID), "state", OTPStateSuperseded)
			}
			pipe.HSet(ctx, key,
				"email", record.Email,
				"purpose", record.Purpose,
				"code_hash", record.CodeHash,
				"state", OTPStatePending,
				"attempts", 0,
				"created_at", record.CreatedAt.Unix(),
				"expires_at", record.ExpiresAt.Unix(),
			)
			pipe.ExpireAt(ctx, key, record.ExpiresAt)
			pipe.Set(ctx, current, record.ID, ttl)
			return nil
		})
		return err
	}, current)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// Verify checks codeHash against the current pending code for email+purpose.
// A mismatch counts an attempt; reaching maxAttempts exhausts the code. A
// match marks it verified, so a code works at most once.
func (s *OTPStore) Verify(ctx context.Context, email, purpose, codeHash string, maxAttempts int) (*OTPRecord, error) {
	current := s.currentKey(email, purpose)
	var matched *OTPRecord

	err := s.withRetry(ctx, func(tx *redis.Tx) error {
		id, err := tx.Get(ctx, current).Result()
		if errors.Is(err, redis.Nil) {
			return ErrOTPNotFound
		}
		if err != nil {
			return err
		}
		key := s.key(id)

		// WATCH after the pointer read so the record itself is guarded too.
		if err := tx.Watch(ctx, key).Err(); err != nil {
			return err
		}
		m, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(m) == 0 {
			return ErrOTPNotFound
		}
		record, err := decodeOTPRecord(id, m)
		if err != nil {
			return err
		}
		if record.State != OTPStatePending {
			return ErrOTPNotFound
		}
		if !s.now().Before(record.ExpiresAt) {
			return ErrOTPExpired
		}

		if subtle.ConstantTimeCompare([]byte(record.CodeHash), []byte(codeHash)) != 1 {
			record.Attempts++
			state := OTPStatePending
			if record.Attempts >= maxAttempts {
				state = OTPStateExhausted
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, "attempts", record.Attempts, "state", state)
				return nil
			})
			if err != nil {
				return err
			}
			if state == OTPStateExhausted {
				return ErrOTPAttemptsExceeded
			}
			return ErrOTPMismatch
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "state", OTPStateVerified)
			return nil
		})
		if err != nil {
			return err
		}
		record.State = OTPStateVerified
		matched = record
		return nil
	}, current)
	if err != nil {
		switch {
		case errors.Is(err, ErrOTPNotFound), errors.Is(err, ErrOTPExpired),
			errors.Is(err, ErrOTPMismatch), errors.Is(err, ErrOTPAttemptsExceeded):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
		}
	}
	return matched, nil
}

// Get returns a record by ID without changing it.
func (s *OTPStore) Get(ctx context.Context, id string) (*OTPRecord, error) {
	m, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	if len(m) == 0 {
		return nil, ErrOTPNotFound
	}
	return decodeOTPRecord(id, m)
}

func (s *OTPStore) withRetry(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

func decodeOTPRecord(id string, m map[string]string) (*OTPRecord, error) {
	attempts, err := strconv.Atoi(m["attempts"])
	if err != nil {
		return nil, fmt.Errorf("invalid otp record: %w", err)
	}
	created, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid otp record: %w", err)
	}
	expires, err := strconv.ParseInt(m["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid otp record: %w", err)
	}
	return &OTPRecord{
		ID:        id,
		Email:     m["email"],
		Purpose:   m["purpose"],
		CodeHash:  m["code_hash"],
		State:     m["state"],
		Attempts:  attempts,
		CreatedAt: time.Unix(created, 0),
		ExpiresAt: time.Unix(expires, 0),
	}, nil
}
