package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrResetNotFound         = errors.New("reset record not found")
	ErrResetUsed             = errors.New("reset record already used")
	ErrResetExpired          = errors.New("reset record expired")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

const maxTxRetries = 4

// PasswordResetRecord is one issued reset token. TokenHash is the digest the
// record is keyed by; the raw token is never stored.
type PasswordResetRecord struct {
	ID        string
	UserID    string
	Email     string
	TokenHash string
	Used      bool
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    time.Time
}

// PasswordResetStore persists reset tokens.
type PasswordResetStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string) *PasswordResetStore {
	if prefix == "" {
		prefix = "apr"
	}
	return &PasswordResetStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *PasswordResetStore) key(tokenHash string) string { return s.prefix + ":t:" + tokenHash }
func (s *PasswordResetStore) userKey(userID string) string { return s.prefix + ":u:" + userID }

// Issue stores record and marks every earlier unused token of the same user as
// used, in one transaction.
func (s *PasswordResetStore) Issue(ctx context.Context, record *PasswordResetRecord) error {
	ttl := record.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("%w: token already expired", ErrResetExpired)
	}

	userKey := s.userKey(record.UserID)
	key := s.key(record.TokenHash)

	err := s.withRetry(ctx, func(tx *redis.Tx) error {
		unused, missing, err := s.classify(ctx, tx, userKey)
		if err != nil {
			return err
		}
		now := s.now().Unix()

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, h := range unused {
				pipe.HSet(ctx, s.key(h), "used", "1", "used_at", now)
			}
			if len(missing) > 0 {
				pipe.SRem(ctx, userKey, toAny(missing)...)
			}
			pipe.HSet(ctx, key,
				"id", record.ID,
				"user_id", record.UserID,
				"email", record.Email,
				"used", "0",
				"created_at", record.CreatedAt.Unix(),
				"expires_at", record.ExpiresAt.Unix(),
			)
			pipe.ExpireAt(ctx, key, record.ExpiresAt)
			pipe.SAdd(ctx, userKey, record.TokenHash)
			pipe.Expire(ctx, userKey, ttl)
			return nil
		})
		return err
	}, userKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// Consume atomically marks the token used and returns its record. A used
// token fails with ErrResetUsed even before it expires.
func (s *PasswordResetStore) Consume(ctx context.Context, tokenHash string) (*PasswordResetRecord, error) {
	key := s.key(tokenHash)
	var matched *PasswordResetRecord

	err := s.withRetry(ctx, func(tx *redis.Tx) error {
		m, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(m) == 0 {
			return ErrResetNotFound
		}

		record, err := decodeResetRecord(tokenHash, m)
		if err != nil {
			return err
		}
		if record.Used {
			return ErrResetUsed
		}
		now := s.now()
		if !now.Before(record.ExpiresAt) {
			return ErrResetExpired
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "used", "1", "used_at", now.Unix())
			return nil
		})
		if err != nil {
			return err
		}

		record.Used = true
		record.UsedAt = time.Unix(now.Unix(), 0)
		matched = record
		return nil
	}, key)
	if err != nil {
		switch {
		case errors.Is(err, ErrResetNotFound), errors.Is(err, ErrResetUsed), errors.Is(err, ErrResetExpired):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
		}
	}
	return matched, nil
}

// Get returns a record without changing it.
func (s *PasswordResetStore) Get(ctx context.Context, tokenHash string) (*PasswordResetRecord, error) {
	m, err := s.redis.HGetAll(ctx, s.key(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	if len(m) == 0 {
		return nil, ErrResetNotFound
	}
	return decodeResetRecord(tokenHash, m)
}

// InvalidateForUser marks every unused token of userID as used and reports how many changed.
func (s *PasswordResetStore) InvalidateForUser(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)
	var changed int

	err := s.withRetry(ctx, func(tx *redis.Tx) error {
		unused, missing, err := s.classify(ctx, tx, userKey)
		if err != nil {
			return err
		}
		if len(unused) == 0 && len(missing) == 0 {
			changed = 0
			return nil
		}
		now := s.now().Unix()

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, h := range unused {
				pipe.HSet(ctx, s.key(h), "used", "1", "used_at", now)
			}
			if len(missing) > 0 {
				pipe.SRem(ctx, userKey, toAny(missing)...)
			}
			return nil
		})
		changed = len(unused)
		return err
	}, userKey)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return changed, nil
}

// classify splits the user's indexed digests into live unused ones and ones
// whose record has already expired out of Redis.
func (s *PasswordResetStore) classify(ctx context.Context, tx *redis.Tx, userKey string) (unused, missing []string, err error) {
	hashes, err := tx.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, nil, err
	}
	for _, h := range hashes {
		used, err := tx.HGet(ctx, s.key(h), "used").Result()
		if errors.Is(err, redis.Nil) {
			missing = append(missing, h)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if used != "1" {
			unused = append(unused, h)
		}
	}
	return unused, missing, nil
}

func (s *PasswordResetStore) withRetry(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

func decodeResetRecord(tokenHash string, m map[string]string) (*PasswordResetRecord, error) {
	created, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid reset record: %w", err)
	}
	expires, err := strconv.ParseInt(m["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid reset record: %w", err)
	}

	record := &PasswordResetRecord{
		ID:        m["id"],
		UserID:    m["user_id"],
		Email:     m["email"],
		TokenHash: tokenHash,
		Used:      m["used"] == "1",
		CreatedAt: time.Unix(created, 0),
		ExpiresAt: time.Unix(expires, 0),
	}
	if v := m["used_at"]; v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			record.UsedAt = time.Unix(n, 0)
		}
	}
	return record, nil
}

func toAny(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
