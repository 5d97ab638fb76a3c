package siteauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/siteauth/password"
)

// Login verifies email and plaintext and starts a session. Unknown email,
// wrong password and inactive account are indistinguishable to the caller:
// all return ErrInvalidCredentials after a full hash verification. The login
// budget is charged by the transport before Login is called.
func (e *Engine) Login(ctx context.Context, email, plaintext string, dev DeviceInfo) (*LoginResult, error) {
	if e == nil || e.userStore == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" || plaintext == "" {
		e.loginFailed(ctx, "", "missing_credentials")
		return nil, ErrInvalidCredentials
	}

	user, err := e.userStore.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			e.logger.ErrorContext(ctx, "user lookup failed", "error", err)
			return nil, fmt.Errorf("user lookup: %w", err)
		}
		e.passwordHash.Verify(plaintext, e.dummyHash)
		e.loginFailed(ctx, "", "unknown_email")
		return nil, ErrInvalidCredentials
	}

	if !e.passwordHash.Verify(plaintext, user.PasswordHash) {
		e.loginFailed(ctx, user.ID, "bad_password")
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		e.loginFailed(ctx, user.ID, "inactive")
		return nil, ErrInvalidCredentials
	}
	if !user.Role.Valid() {
		e.logger.WarnContext(ctx, "user has no valid role", "user_id", user.ID)
		e.loginFailed(ctx, user.ID, "invalid_role")
		return nil, ErrInvalidCredentials
	}

	e.maybeRehash(ctx, user, plaintext)

	if err := e.userStore.TouchLastLogin(ctx, user.ID, e.clock()); err != nil {
		e.logger.WarnContext(ctx, "last login update failed", "user_id", user.ID, "error", err)
	}

	tokens, sess, err := e.createSession(ctx, SessionSubject{
		UserID:               user.ID,
		Email:                user.Email,
		Role:                 user.Role,
		RequirePasswordReset: user.RequirePasswordReset,
	}, dev)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, tokens.SessionID, nil, nil)

	return &LoginResult{
		User: UserSummary{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
			Role:  user.Role,
		},
		Session:              summarizeSession(sess, e.clock()),
		RequirePasswordReset: user.RequirePasswordReset,
		Tokens:               tokens,
	}, nil
}

func (e *Engine) loginFailed(ctx context.Context, userID, reason string) {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"reason": reason}
	})
}

// maybeRehash replaces a hash produced with weaker parameters. Failure only
// logs; the login still succeeds.
func (e *Engine) maybeRehash(ctx context.Context, user *User, plaintext string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	up, ok := e.passwordHash.(password.Upgrader)
	if !ok || !up.NeedsUpgrade(user.PasswordHash) {
		return
	}

	upgraded, err := e.passwordHash.Hash(plaintext)
	if err != nil {
		e.logger.WarnContext(ctx, "password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	if err := e.userStore.UpdatePassword(ctx, user.ID, upgraded, user.RequirePasswordReset); err != nil {
		e.logger.WarnContext(ctx, "password rehash store failed", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = upgraded
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
