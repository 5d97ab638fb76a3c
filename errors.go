package siteauth

import (
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrUnauthorized is returned for every access-token or session failure.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is the single login failure; it never reveals
	// whether the email exists.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrRefreshInvalid is returned for every refresh failure.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRateLimited is wrapped by *RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrForbidden is returned when the principal lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrPasswordResetRequired blocks every non-exempt route until a forced
	// reset is completed.
	ErrPasswordResetRequired = errors.New("password reset required")
	// ErrPasswordPolicy is wrapped by *PolicyError.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse rejects a new password equal to the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrSessionCreationFailed is returned when a session cannot be persisted.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrSessionInvalidationFailed is returned when a password change could
	// not revoke sessions; the previous hash has been restored.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
	// ErrSessionNotFound is returned by Logout for unknown sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrResetTokenInvalid covers unknown, used and expired reset tokens.
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
	// ErrPasswordResetDisabled is returned when the reset flow is turned off.
	ErrPasswordResetDisabled = errors.New("password reset disabled")
	// ErrOTPInvalid covers unknown, expired, mismatched and burned codes.
	ErrOTPInvalid = errors.New("invalid or expired verification code")
	// ErrDeliveryFailed is returned when a required email could not be sent.
	ErrDeliveryFailed = errors.New("message delivery failed")
	// ErrUserNotFound is returned by admin operations on unknown targets.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned by UserStore.Create on duplicate email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidInput covers empty or malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSelfReset rejects an admin resetting their own password through the
	// admin path.
	ErrSelfReset = errors.New("cannot reset own password through admin reset")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrEngineNotReady is returned by methods on a nil or partial Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// PolicyError lists every strength rule a candidate password broke.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	if len(e.Violations) == 0 {
		return ErrPasswordPolicy.Error()
	}
	return ErrPasswordPolicy.Error() + ": " + strings.Join(e.Violations, "; ")
}

func (e *PolicyError) Unwrap() error { return ErrPasswordPolicy }

// RateLimitError reports an exhausted budget. RetryAfter is in whole seconds.
type RateLimitError struct {
	Budget     string
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return ErrRateLimited.Error() + " (" + e.Budget + "), retry after " + strconv.Itoa(e.RetryAfter) + "s"
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
