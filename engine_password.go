package siteauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/siteauth/password"
	"github.com/MrEthical07/siteauth/rbac"
)

// CreateUserRequest is the input for [Engine.CreateUser].
type CreateUserRequest struct {
	Email                string
	Name                 string
	Password             string
	Role                 rbac.Role
	RequirePasswordReset bool
}

// CreateUser hashes req.Password and stores a new active user. It is meant
// for provisioning; the site has no self-registration.
func (e *Engine) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	if e == nil || e.userStore == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") || !req.Role.Valid() {
		return nil, ErrInvalidInput
	}
	if err := e.checkPolicy(req.Password); err != nil {
		return nil, err
	}

	hash, err := e.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	return e.userStore.Create(ctx, NewUser{
		Email:                email,
		Name:                 strings.TrimSpace(req.Name),
		PasswordHash:         hash,
		Role:                 req.Role,
		RequirePasswordReset: req.RequirePasswordReset,
	})
}

// ChangePassword replaces the caller's password after verifying current.
// Every session of the user, the calling one included, is revoked and a
// fresh session is returned so the caller stays signed in. A pending forced
// reset is cleared.
func (e *Engine) ChangePassword(ctx context.Context, p *Principal, current, next string, dev DeviceInfo) (*SessionTokens, error) {
	if e == nil || e.userStore == nil {
		return nil, ErrEngineNotReady
	}
	if p == nil || p.UserID == "" {
		return nil, ErrUnauthorized
	}

	user, err := e.loadUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	if !e.passwordHash.Verify(current, user.PasswordHash) {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, user.ID, p.SessionID, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	return e.replacePassword(ctx, user, p.SessionID, next, dev, auditEventPasswordChangeSuccess, MetricPasswordChangeSuccess)
}

// CompleteForcedReset sets a new password for a user whose account carries
// the forced-reset flag. The flag is cleared, every session is revoked and
// a fresh session is returned.
func (e *Engine) CompleteForcedReset(ctx context.Context, p *Principal, next string, dev DeviceInfo) (*SessionTokens, error) {
	if e == nil || e.userStore == nil {
		return nil, ErrEngineNotReady
	}
	if p == nil || p.UserID == "" {
		return nil, ErrUnauthorized
	}

	user, err := e.loadUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if !user.RequirePasswordReset {
		return nil, ErrForbidden
	}

	return e.replacePassword(ctx, user, p.SessionID, next, dev, auditEventForcedResetCompleted, MetricForcedResetCompleted)
}

func (e *Engine) replacePassword(ctx context.Context, user *User, sessionID, next string, dev DeviceInfo, event string, metric MetricID) (*SessionTokens, error) {
	if err := e.checkPolicy(next); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, user.ID, sessionID, err, nil)
		return nil, err
	}
	if e.passwordHash.Verify(next, user.PasswordHash) {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, user.ID, sessionID, ErrPasswordReuse, nil)
		return nil, ErrPasswordReuse
	}

	hash, err := e.hashPassword(next)
	if err != nil {
		return nil, err
	}

	if err := e.updatePasswordAndRevoke(ctx, user, hash, false, ""); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, user.ID, sessionID, err, nil)
		return nil, err
	}

	e.metricInc(metric)
	e.emitAudit(ctx, event, true, user.ID, sessionID, nil, nil)

	tokens, err := e.CreateSession(ctx, SessionSubject{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}, dev)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// AdminResetPassword sets a temporary password for another user, flags the
// account for a forced reset and revokes every one of the target's sessions.
// The admin's own sessions are untouched.
func (e *Engine) AdminResetPassword(ctx context.Context, admin *Principal, targetUserID, temporary string) error {
	if e == nil || e.userStore == nil {
		return ErrEngineNotReady
	}
	if admin == nil || admin.UserID == "" {
		return ErrUnauthorized
	}
	if admin.Role != rbac.RoleAdmin {
		e.emitAudit(ctx, auditEventAdminPasswordReset, false, admin.UserID, admin.SessionID, ErrForbidden, nil)
		return ErrForbidden
	}
	if targetUserID == "" {
		return ErrInvalidInput
	}
	if targetUserID == admin.UserID {
		return ErrSelfReset
	}

	target, err := e.userStore.FindByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("user lookup: %w", err)
	}
	if err := e.checkPolicy(temporary); err != nil {
		return err
	}

	hash, err := e.hashPassword(temporary)
	if err != nil {
		return err
	}

	if err := e.updatePasswordAndRevoke(ctx, target, hash, true, ""); err != nil {
		e.emitAudit(ctx, auditEventAdminPasswordReset, false, admin.UserID, admin.SessionID, err, nil)
		return err
	}

	e.metricInc(MetricAdminPasswordReset)
	e.emitAudit(ctx, auditEventAdminPasswordReset, true, admin.UserID, admin.SessionID, nil, func() map[string]string {
		return map[string]string{"target_user_id": target.ID}
	})
	return nil
}

// updatePasswordAndRevoke stores hash and then revokes the user's sessions.
// When revocation fails the previous hash and flag are written back, so a
// password change never survives without its revocation.
func (e *Engine) updatePasswordAndRevoke(ctx context.Context, user *User, hash string, requireReset bool, exceptSessionID string) error {
	if err := e.userStore.UpdatePassword(ctx, user.ID, hash, requireReset); err != nil {
		return fmt.Errorf("password update: %w", err)
	}

	if _, err := e.revokeAll(ctx, user.ID, exceptSessionID); err != nil {
		if rerr := e.userStore.UpdatePassword(ctx, user.ID, user.PasswordHash, user.RequirePasswordReset); rerr != nil {
			e.logger.ErrorContext(ctx, "password rollback failed", "user_id", user.ID, "error", rerr)
			return errors.Join(err, rerr)
		}
		e.logger.ErrorContext(ctx, "session revocation failed, password restored", "user_id", user.ID, "error", err)
		return err
	}
	return nil
}

func (e *Engine) loadUser(ctx context.Context, userID string) (*User, error) {
	user, err := e.userStore.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	if !user.Active {
		return nil, ErrUnauthorized
	}
	return user, nil
}

func (e *Engine) checkPolicy(plaintext string) error {
	res := password.ValidateStrength(plaintext, e.config.Password.Policy)
	if !res.Valid {
		e.metricInc(MetricPasswordPolicyRejected)
		return &PolicyError{Violations: res.Errors}
	}
	if max := e.config.Password.MaxBytes; max > 0 && len(plaintext) > max {
		e.metricInc(MetricPasswordPolicyRejected)
		return &PolicyError{Violations: []string{"password is too long"}}
	}
	return nil
}

// hashPassword reports hasher length limits as policy violations.
func (e *Engine) hashPassword(plaintext string) (string, error) {
	hash, err := e.passwordHash.Hash(plaintext)
	switch {
	case err == nil:
		return hash, nil
	case errors.Is(err, password.ErrPasswordTooLong):
		return "", &PolicyError{Violations: []string{"password is too long"}}
	case errors.Is(err, password.ErrEmptyPassword):
		return "", &PolicyError{Violations: []string{"password must not be empty"}}
	default:
		return "", fmt.Errorf("hash password: %w", err)
	}
}
