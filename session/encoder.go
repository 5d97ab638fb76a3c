package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// CurrentSchemaVersion is written to every session hash as field "v".
const CurrentSchemaVersion = 1

// ErrSessionCorrupt is returned when a stored hash cannot be decoded.
var ErrSessionCorrupt = errors.New("session record corrupt")

const (
	fieldVersion       = "v"
	fieldUserID        = "user_id"
	fieldEmail         = "email"
	fieldRole          = "role"
	fieldRequireReset  = "require_reset"
	fieldRefreshHash   = "refresh_hash"
	fieldActive        = "active"
	fieldDevice        = "device"
	fieldBrowser       = "browser"
	fieldOS            = "os"
	fieldIP            = "ip"
	fieldUserAgent     = "user_agent"
	fieldCreatedAt     = "created_at"
	fieldExpiresAt     = "expires_at"
	fieldLastRefreshed = "last_refreshed_at"
	fieldRevokedAt     = "revoked_at"
)

func encodeFields(s *Session) map[string]any {
	return map[string]any{
		fieldVersion:       CurrentSchemaVersion,
		fieldUserID:        s.UserID,
		fieldEmail:         s.Email,
		fieldRole:          s.Role,
		fieldRequireReset:  boolField(s.RequirePasswordReset),
		fieldRefreshHash:   s.RefreshHash,
		fieldActive:        boolField(s.Active),
		fieldDevice:        s.Device.Device,
		fieldBrowser:       s.Device.Browser,
		fieldOS:            s.Device.OS,
		fieldIP:            s.Device.IP,
		fieldUserAgent:     s.Device.UserAgent,
		fieldCreatedAt:     unixField(s.CreatedAt),
		fieldExpiresAt:     unixField(s.ExpiresAt),
		fieldLastRefreshed: unixField(s.LastRefreshedAt),
		fieldRevokedAt:     unixField(s.RevokedAt),
	}
}

func decodeFields(id string, m map[string]string) (*Session, error) {
	version, err := strconv.Atoi(m[fieldVersion])
	if err != nil || version < 1 || version > CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported session schema version %q", ErrSessionCorrupt, m[fieldVersion])
	}
	if m[fieldUserID] == "" || m[fieldRefreshHash] == "" {
		return nil, fmt.Errorf("%w: missing required fields", ErrSessionCorrupt)
	}

	created, err := parseUnix(m[fieldCreatedAt])
	if err != nil {
		return nil, err
	}
	expires, err := parseUnix(m[fieldExpiresAt])
	if err != nil {
		return nil, err
	}
	refreshed, err := parseUnix(m[fieldLastRefreshed])
	if err != nil {
		return nil, err
	}
	revoked, err := parseUnix(m[fieldRevokedAt])
	if err != nil {
		return nil, err
	}

	return &Session{
		SchemaVersion:        version,
		ID:                   id,
		UserID:               m[fieldUserID],
		Email:                m[fieldEmail],
		Role:                 m[fieldRole],
		RequirePasswordReset: m[fieldRequireReset] == "1",
		RefreshHash:          m[fieldRefreshHash],
		Active:               m[fieldActive] == "1",
		Device: Device{
			Device:    m[fieldDevice],
			Browser:   m[fieldBrowser],
			OS:        m[fieldOS],
			IP:        m[fieldIP],
			UserAgent: m[fieldUserAgent],
		},
		CreatedAt:       created,
		ExpiresAt:       expires,
		LastRefreshedAt: refreshed,
		RevokedAt:       revoked,
	}, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Zero times are stored as "0" and decode back to the zero time.
func unixField(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func parseUnix(s string) (time.Time, error) {
	if s == "" || s == "0" {
		return time.Time{}, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrSessionCorrupt, s)
	}
	return time.Unix(n, 0), nil
}
