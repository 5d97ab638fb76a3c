package siteauth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/MrEthical07/siteauth/internal/stores"
	"github.com/MrEthical07/siteauth/token"
)

// RequestPasswordReset issues a reset token for email and mails it. The
// result and the response time are the same whether or not the email belongs
// to an active user. Issuing marks every earlier unused token of the user as
// used.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.resetStore == nil || e.userStore == nil {
		return ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled {
		return ErrPasswordResetDisabled
	}

	email = normalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}
	e.metricInc(MetricPasswordResetRequest)

	user, err := e.userStore.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			e.logger.ErrorContext(ctx, "user lookup failed", "error", err)
			return fmt.Errorf("user lookup: %w", err)
		}
		user = nil
	}

	raw, err := token.Generate()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	digest := token.Hash(raw)

	if user == nil || !user.Active {
		userID, reason := "", ErrUserNotFound
		if user != nil {
			userID, reason = user.ID, ErrUnauthorized
		}
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, userID, "", reason, nil)
		return e.padUnregisteredReset(ctx)
	}

	now := e.clock()
	record := &stores.PasswordResetRecord{
		ID:        token.NewID(),
		UserID:    user.ID,
		Email:     user.Email,
		TokenHash: digest,
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.PasswordReset.TokenTTL),
	}
	if err := e.resetStore.Issue(ctx, record); err != nil {
		e.logger.ErrorContext(ctx, "reset token issue failed", "user_id", user.ID, "error", err)
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	msg := Message{
		To:      user.Email,
		Purpose: PurposePasswordReset,
		Token:   raw,
		Link:    e.resetLink(raw),
	}
	if !e.config.PasswordReset.RequireDelivery {
		e.sendResetInBackground(ctx, user.ID, msg)
		return e.enumerationDelay(ctx)
	}

	started := time.Now()
	err = e.deliver(ctx, msg)
	e.observeDelivery(time.Since(started))
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, user.ID, "", ErrDeliveryFailed, nil)
		return ErrDeliveryFailed
	}
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, "", nil, nil)
	return e.enumerationDelay(ctx)
}

// sendResetInBackground mails msg after the request has returned. The send
// keeps ctx values (client IP) but not its cancellation.
func (e *Engine) sendResetInBackground(ctx context.Context, userID string, msg Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.PasswordReset.DeliveryTimeout)

	e.mailWG.Add(1)
	go func() {
		defer e.mailWG.Done()
		defer cancel()

		if err := e.deliver(ctx, msg); err != nil {
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, userID, "", ErrDeliveryFailed, nil)
			return
		}
		e.emitAudit(ctx, auditEventPasswordResetRequest, true, userID, "", nil, nil)
	}()
}

// padUnregisteredReset stands in for the work done for a registered
// address. With inline delivery that includes the typical mail send.
func (e *Engine) padUnregisteredReset(ctx context.Context) error {
	if e.config.PasswordReset.RequireDelivery {
		if d := time.Duration(e.deliveryLatency.Load()); d > 0 {
			if err := sleepContext(ctx, d); err != nil {
				return err
			}
		}
	}
	return e.enumerationDelay(ctx)
}

// observeDelivery folds d into a moving average (weight 1/8).
func (e *Engine) observeDelivery(d time.Duration) {
	prev := e.deliveryLatency.Load()
	if prev == 0 {
		e.deliveryLatency.Store(int64(d))
		return
	}
	e.deliveryLatency.Store(prev + (int64(d)-prev)/8)
}

// sleepEnumerationDelay waits a random 20-40ms.
func sleepEnumerationDelay(ctx context.Context) error {
	const minMs, maxMs = 20, 40

	n, err := rand.Int(rand.Reader, big.NewInt(maxMs-minMs+1))
	if err != nil {
		return err
	}
	return sleepContext(ctx, time.Duration(minMs+n.Int64())*time.Millisecond)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConfirmPasswordReset redeems rawToken and sets next as the password. The
// policy is checked before the token is consumed, so a rejected password
// leaves the token usable. Every session of the user is revoked.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, rawToken, next string) error {
	if e == nil || e.resetStore == nil || e.userStore == nil {
		return ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled {
		return ErrPasswordResetDisabled
	}
	if err := token.Validate(rawToken); err != nil {
		e.resetConfirmFailed(ctx, "", ErrResetTokenInvalid)
		return ErrResetTokenInvalid
	}
	if err := e.checkPolicy(next); err != nil {
		return err
	}

	digest := token.Hash(rawToken)
	record, err := e.resetStore.Get(ctx, digest)
	if err != nil {
		if errors.Is(err, stores.ErrResetRedisUnavailable) {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		e.resetConfirmFailed(ctx, "", ErrResetTokenInvalid)
		return ErrResetTokenInvalid
	}

	user, err := e.userStore.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.resetConfirmFailed(ctx, record.UserID, ErrResetTokenInvalid)
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("user lookup: %w", err)
	}
	if !user.Active || normalizeEmail(user.Email) != record.Email {
		e.resetConfirmFailed(ctx, user.ID, ErrResetTokenInvalid)
		return ErrResetTokenInvalid
	}

	hash, err := e.hashPassword(next)
	if err != nil {
		return err
	}

	if _, err := e.resetStore.Consume(ctx, digest); err != nil {
		if errors.Is(err, stores.ErrResetRedisUnavailable) {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		e.resetConfirmFailed(ctx, user.ID, ErrResetTokenInvalid)
		return ErrResetTokenInvalid
	}

	if err := e.updatePasswordAndRevoke(ctx, user, hash, false, ""); err != nil {
		e.resetConfirmFailed(ctx, user.ID, err)
		return err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.ID, "", nil, nil)
	return nil
}

// InvalidateResetTokens marks every outstanding reset token of userID as
// used. Call it whenever the user's email changes.
func (e *Engine) InvalidateResetTokens(ctx context.Context, userID string) (int, error) {
	if e == nil || e.resetStore == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrInvalidInput
	}

	n, err := e.resetStore.InvalidateForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	e.emitAudit(ctx, auditEventResetTokensRevoked, true, userID, "", nil, func() map[string]string {
		return map[string]string{"invalidated": fmt.Sprint(n)}
	})
	return n, nil
}

func (e *Engine) resetConfirmFailed(ctx context.Context, userID string, err error) {
	e.metricInc(MetricPasswordResetConfirmFailure)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, false, userID, "", err, nil)
}

func (e *Engine) resetLink(raw string) string {
	base := e.config.PasswordReset.ResetURL
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("token", raw)
	u.RawQuery = q.Encode()
	return u.String()
}

func (e *Engine) deliver(ctx context.Context, msg Message) error {
	if e.mailer == nil {
		e.metricInc(MetricDeliveryFailure)
		e.logger.WarnContext(ctx, "no mailer configured", "purpose", msg.Purpose)
		return ErrDeliveryFailed
	}
	if err := e.mailer.Send(ctx, msg); err != nil {
		e.metricInc(MetricDeliveryFailure)
		e.logger.WarnContext(ctx, "mail delivery failed", "purpose", msg.Purpose, "error", err)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}
