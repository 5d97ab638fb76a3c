package siteauth

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventSessionCreated        = "session_created"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshFailure        = "refresh_failure"
	auditEventLogout                = "logout"
	auditEventLogoutAll             = "logout_all"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventForcedResetCompleted  = "forced_reset_completed"
	auditEventAdminPasswordReset    = "admin_password_reset"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetConfirm  = "password_reset_confirm"
	auditEventResetTokensRevoked    = "password_reset_tokens_invalidated"
	auditEventOTPRequest            = "otp_request"
	auditEventOTPVerify             = "otp_verify"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
)

// AuditErrorCode is the stable error label recorded on failed audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized          AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials    AuditErrorCode = "invalid_credentials"
	auditErrRateLimited           AuditErrorCode = "rate_limited"
	auditErrInvalidToken          AuditErrorCode = "invalid_token"
	auditErrSessionNotFound       AuditErrorCode = "session_not_found"
	auditErrUserNotFound          AuditErrorCode = "user_not_found"
	auditErrForbidden             AuditErrorCode = "forbidden"
	auditErrPasswordPolicy        AuditErrorCode = "password_policy"
	auditErrPasswordReuse         AuditErrorCode = "password_reuse"
	auditErrSessionCreationFailed AuditErrorCode = "session_creation_failed"
	auditErrSessionInvalidation   AuditErrorCode = "session_invalidation_failed"
	auditErrDeliveryFailed        AuditErrorCode = "delivery_failed"
	auditErrInvalidInput          AuditErrorCode = "invalid_input"
	auditErrUnavailable           AuditErrorCode = "backend_unavailable"
	auditErrInternal              AuditErrorCode = "internal_error"
)

// emitAudit records one event. meta is only called when auditing is on.
func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, sessionID string, err error, meta func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.clock().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Error:     string(auditErrorCode(err)),
	}
	if meta != nil {
		event.Metadata = meta()
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, identifier string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"scope":      scope,
			"identifier": identifier,
		}
	})
}

// auditErrorCodes is checked in order; the first sentinel that matches wins.
var auditErrorCodes = []struct {
	err  error
	code AuditErrorCode
}{
	{ErrUnauthorized, auditErrUnauthorized},
	{ErrInvalidCredentials, auditErrInvalidCredentials},
	{ErrRateLimited, auditErrRateLimited},
	{ErrRefreshInvalid, auditErrInvalidToken},
	{ErrResetTokenInvalid, auditErrInvalidToken},
	{ErrOTPInvalid, auditErrInvalidToken},
	{ErrSessionNotFound, auditErrSessionNotFound},
	{ErrUserNotFound, auditErrUserNotFound},
	{ErrForbidden, auditErrForbidden},
	{ErrSelfReset, auditErrForbidden},
	{ErrPasswordResetRequired, auditErrForbidden},
	{ErrPasswordPolicy, auditErrPasswordPolicy},
	{ErrPasswordReuse, auditErrPasswordReuse},
	{ErrSessionCreationFailed, auditErrSessionCreationFailed},
	{ErrSessionInvalidationFailed, auditErrSessionInvalidation},
	{ErrDeliveryFailed, auditErrDeliveryFailed},
	{ErrInvalidInput, auditErrInvalidInput},
	{ErrRedisUnavailable, auditErrUnavailable},
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}
	for _, c := range auditErrorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return auditErrInternal
}
