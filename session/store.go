package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps every backend failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrNotFound is returned when no session exists under the given ID.
	ErrNotFound = errors.New("session not found")
	// ErrRefreshNotFound is returned when no session is indexed under the presented digest.
	ErrRefreshNotFound = errors.New("refresh session not found")
	// ErrRefreshHashMismatch is returned when the indexed session holds a different digest.
	ErrRefreshHashMismatch = errors.New("refresh hash mismatch")
	// ErrSessionExpired is returned when the session's refresh expiry has passed.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionRevoked is returned when the session is no longer active.
	ErrSessionRevoked = errors.New("session revoked")
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
	rotateStatusRevoked  int64 = 4
)

// KEYS: old index, new index.
// ARGV: session key prefix, presented digest, next digest, now, refresh ttl
// seconds, absolute lifetime seconds (0 disables the cap).
var rotateRefreshLua = redis.NewScript(`
local sid = redis.call("GET", KEYS[1])
if not sid then
  return {0}
end

local skey = ARGV[1] .. sid
local f = redis.call("HMGET", skey, "refresh_hash", "active", "expires_at", "created_at")
if not f[1] then
  redis.call("DEL", KEYS[1])
  return {0}
end
if f[1] ~= ARGV[2] then
  return {2}
end
if f[2] ~= "1" then
  redis.call("DEL", KEYS[1])
  return {4}
end

local now = tonumber(ARGV[4])
if tonumber(f[3]) <= now then
  redis.call("DEL", KEYS[1])
  return {1}
end

local exp = now + tonumber(ARGV[5])
local abs = tonumber(ARGV[6])
if abs > 0 then
  local cap = tonumber(f[4]) + abs
  if cap < exp then
    exp = cap
  end
end
if exp <= now then
  redis.call("DEL", KEYS[1])
  return {1}
end

redis.call("HSET", skey, "refresh_hash", ARGV[3], "expires_at", exp, "last_refreshed_at", now)
redis.call("EXPIREAT", skey, exp)
redis.call("DEL", KEYS[1])
redis.call("SET", KEYS[2], sid, "EX", exp - now)

return {3, sid, redis.call("HGETALL", skey)}
`)

// KEYS: session key. ARGV: refresh index prefix, now.
var revokeLua = redis.NewScript(`
local f = redis.call("HMGET", KEYS[1], "active", "refresh_hash")
if f[1] ~= "1" then
  return 0
end
redis.call("HSET", KEYS[1], "active", "0", "revoked_at", ARGV[2])
if f[2] then
  redis.call("DEL", ARGV[1] .. f[2])
end
return 1
`)

// KEYS: user index. ARGV: session key prefix, refresh index prefix, now, except ID.
var revokeAllLua = redis.NewScript(`
local ids = redis.call("SMEMBERS", KEYS[1])
local n = 0
for _, sid in ipairs(ids) do
  if sid ~= ARGV[4] then
    local skey = ARGV[1] .. sid
    local f = redis.call("HMGET", skey, "active", "refresh_hash")
    if not f[1] then
      redis.call("SREM", KEYS[1], sid)
    elseif f[1] == "1" then
      redis.call("HSET", skey, "active", "0", "revoked_at", ARGV[3])
      if f[2] then
        redis.call("DEL", ARGV[2] .. f[2])
      end
      n = n + 1
    end
  end
end
return n
`)

// Store is a Redis-backed session store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a session [Store]. prefix namespaces every key; empty
// selects "ss".
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ss"
	}
	return &Store{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *Store) sessionPrefix() string { return s.prefix + ":s:" }
func (s *Store) refreshPrefix() string { return s.prefix + ":r:" }

func (s *Store) key(sessionID string) string     { return s.sessionPrefix() + sessionID }
func (s *Store) refreshKey(digest string) string { return s.refreshPrefix() + digest }
func (s *Store) userKey(userID string) string    { return s.prefix + ":u:" + userID }

// Save persists a new session with its refresh index and user index entries.
// The record expires at sess.ExpiresAt.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("%w: session already expired", ErrSessionExpired)
	}

	key := s.key(sess.ID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeFields(sess))
		pipe.ExpireAt(ctx, key, sess.ExpiresAt)
		pipe.Set(ctx, s.refreshKey(sess.RefreshHash), sess.ID, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads a session by ID. Revoked and expired sessions are returned as
// stored; callers decide with [Session.Usable].
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	m, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return decodeFields(sessionID, m)
}

// GetByRefreshHash resolves a refresh digest to its session.
func (s *Store) GetByRefreshHash(ctx context.Context, digest string) (*Session, error) {
	sid, err := s.redis.Get(ctx, s.refreshKey(digest)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRefreshNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := s.Get(ctx, sid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrRefreshNotFound
		}
		return nil, err
	}
	if sess.RefreshHash != digest {
		return nil, ErrRefreshHashMismatch
	}
	return sess, nil
}

// Rotate atomically swaps presentedDigest for nextDigest. The session must be
// indexed under presentedDigest, active and unexpired. The new refresh expiry
// is now+refreshTTL, capped at CreatedAt+absoluteLifetime when that is positive.
// Of two concurrent calls with the same digest exactly one succeeds.
func (s *Store) Rotate(ctx context.Context, presentedDigest, nextDigest string, refreshTTL, absoluteLifetime time.Duration) (*Session, error) {
	result, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.refreshKey(presentedDigest), s.refreshKey(nextDigest)},
		s.sessionPrefix(),
		presentedDigest,
		nextDigest,
		s.now().Unix(),
		int64(refreshTTL/time.Second),
		int64(absoluteLifetime/time.Second),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, ErrRefreshNotFound
	case rotateStatusExpired:
		return nil, ErrSessionExpired
	case rotateStatusMismatch:
		return nil, ErrRefreshHashMismatch
	case rotateStatusRevoked:
		return nil, ErrSessionRevoked
	case rotateStatusRotated:
		if len(parts) < 3 {
			return nil, fmt.Errorf("%w: missing rotated session payload", ErrRedisUnavailable)
		}
		sid, _ := parts[1].(string)
		fields, err := pairsToMap(parts[2])
		if err != nil {
			return nil, err
		}
		return decodeFields(sid, fields)
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

// Revoke marks one session inactive. It reports false when the session was
// missing or already revoked.
func (s *Store) Revoke(ctx context.Context, sessionID string) (bool, error) {
	n, err := revokeLua.Run(ctx, s.redis, []string{s.key(sessionID)}, s.refreshPrefix(), s.now().Unix()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// RevokeAllForUser marks every active session of userID inactive except
// exceptSessionID (which may be empty) and returns how many changed. Runs as a
// single script, so sessions created before the call cannot escape it.
func (s *Store) RevokeAllForUser(ctx context.Context, userID, exceptSessionID string) (int, error) {
	n, err := revokeAllLua.Run(
		ctx,
		s.redis,
		[]string{s.userKey(userID)},
		s.sessionPrefix(),
		s.refreshPrefix(),
		s.now().Unix(),
		exceptSessionID,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// ListForUser returns every retained session of userID, newest first.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions := make([]*Session, 0, len(ids))
	for i, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			continue
		}
		sess, err := decodeFields(ids[i], m)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func pairsToMap(v interface{}) (map[string]string, error) {
	flat, ok := v.([]interface{})
	if !ok || len(flat)%2 != 0 {
		return nil, fmt.Errorf("%w: invalid session payload", ErrRedisUnavailable)
	}
	m := make(map[string]string, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		k, _ := flat[i].(string)
		m[k] = stringify(flat[i+1])
	}
	return m, nil
}

func stringify(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
