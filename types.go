package siteauth

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/siteauth/internal/audit"
	"github.com/MrEthical07/siteauth/rbac"
)

// User is the account record the Engine reads through [UserStore]. Email is
// stored normalized (trimmed, lower-case).
type User struct {
	ID                   string
	Email                string
	Name                 string
	PasswordHash         string
	Role                 rbac.Role
	Active               bool
	RequirePasswordReset bool
	LastLoginAt          time.Time
	CreatedAt            time.Time
}

// NewUser is the input for [UserStore.Create].
type NewUser struct {
	Email                string
	Name                 string
	PasswordHash         string
	Role                 rbac.Role
	RequirePasswordReset bool
}

// UserStore is the persistent user table. FindByEmail and FindByID return
// [ErrUserNotFound] for unknown users; Create returns [ErrUserExists] on a
// duplicate email.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, requireReset bool) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	Create(ctx context.Context, input NewUser) (*User, error)
}

// Message purposes.
const (
	PurposePasswordReset     = "password_reset"
	PurposeRegistration      = "registration"
	PurposeEmailVerification = "email_verification"
)

// Message is an outbound email. Exactly one of Token or Code is set; Link is
// the reset URL when one is configured.
type Message struct {
	To      string
	Purpose string
	Token   string
	Code    string
	Link    string
}

// Mailer delivers [Message] values.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// DeviceInfo is the transport metadata captured at session creation.
type DeviceInfo struct {
	UserAgent string
	IP        string
}

// SessionSubject identifies who a new session belongs to.
type SessionSubject struct {
	UserID               string
	Email                string
	Role                 rbac.Role
	RequirePasswordReset bool
}

// SessionTokens is returned exactly once when a session is created or
// refreshed. None of the raw values are stored.
type SessionTokens struct {
	SessionID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	CSRFToken        string
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID               string
	Email                string
	Role                 rbac.Role
	SessionID            string
	RequirePasswordReset bool
}

// UserSummary is the public part of a user returned by Login.
type UserSummary struct {
	ID    string    `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  rbac.Role `json:"role"`
}

// SessionSummary is the public part of a session.
type SessionSummary struct {
	ID        string    `json:"id"`
	Device    string    `json:"device"`
	Browser   string    `json:"browser"`
	OS        string    `json:"os"`
	IP        string    `json:"ip"`
	Active    bool      `json:"active"`
	Current   bool      `json:"current,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	User                 UserSummary
	Session              SessionSummary
	RequirePasswordReset bool
	Tokens               *SessionTokens
}

// RateBudget selects one of the Engine's limiters.
type RateBudget int

const (
	BudgetGeneral RateBudget = iota
	BudgetLogin
	BudgetReset
	// BudgetResetConfirm guards redemption of reset links; it is separate
	// from BudgetReset so requesting links never blocks using one.
	BudgetResetConfirm
)

func (b RateBudget) String() string {
	switch b {
	case BudgetLogin:
		return "login"
	case BudgetReset:
		return "reset"
	case BudgetResetConfirm:
		return "reset_confirm"
	default:
		return "general"
	}
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON-encoded events to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs events through a *slog.Logger.
type SlogSink = internalaudit.SlogSink

// MultiSink fans events out to several sinks.
type MultiSink = internalaudit.MultiSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
