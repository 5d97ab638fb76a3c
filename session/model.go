package session

import "time"

// Device is the client metadata captured when a session is created.
type Device struct {
	Device    string `json:"device"`
	Browser   string `json:"browser"`
	OS        string `json:"os"`
	IP        string `json:"ip"`
	UserAgent string `json:"-"`
}

// Session is one login on one device.
//
// RefreshHash holds the digest of the current refresh token. ExpiresAt is the
// refresh expiry; access-token expiry travels in the JWT.
type Session struct {
	SchemaVersion int

	ID                   string
	UserID               string
	Email                string
	Role                 string
	RequirePasswordReset bool

	RefreshHash string
	Active      bool
	Device      Device

	CreatedAt       time.Time
	ExpiresAt       time.Time
	LastRefreshedAt time.Time
	RevokedAt       time.Time
}

// Usable reports whether the session is active and unexpired at now. Expiry is
// always re-evaluated; the active flag alone is never trusted.
func (s *Session) Usable(now time.Time) bool {
	return s != nil && s.Active && now.Before(s.ExpiresAt)
}
