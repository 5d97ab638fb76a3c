package siteauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/siteauth/internal/stores"
	"github.com/MrEthical07/siteauth/token"
)

func validPurpose(purpose string) bool {
	switch purpose {
	case PurposeRegistration, PurposePasswordReset, PurposeEmailVerification:
		return true
	}
	return false
}

// RequestOTP issues a six-digit code for email and purpose and mails it. The
// previous pending code for the same pair stops working. Delivery failure is
// logged and does not fail the call.
func (e *Engine) RequestOTP(ctx context.Context, email, purpose string) error {
	if e == nil || e.otpStore == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" || !validPurpose(purpose) {
		return ErrInvalidInput
	}

	code, err := token.GenerateOTP()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	now := e.clock()
	record := &stores.OTPRecord{
		ID:        token.NewID(),
		Email:     email,
		Purpose:   purpose,
		CodeHash:  token.Hash(code),
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.OTP.TTL),
	}
	if err := e.otpStore.Issue(ctx, record); err != nil {
		e.logger.ErrorContext(ctx, "otp issue failed", "purpose", purpose, "error", err)
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	e.metricInc(MetricOTPRequest)

	if err := e.deliver(ctx, Message{To: email, Purpose: purpose, Code: code}); err != nil {
		e.emitAudit(ctx, auditEventOTPRequest, false, "", "", ErrDeliveryFailed, func() map[string]string {
			return map[string]string{"purpose": purpose}
		})
		return nil
	}

	e.emitAudit(ctx, auditEventOTPRequest, true, "", "", nil, func() map[string]string {
		return map[string]string{"purpose": purpose}
	})
	return nil
}

// VerifyOTP checks code against the current code for email and purpose. A
// code verifies at most once and is burned after OTP.MaxAttempts wrong
// guesses. Every failure is ErrOTPInvalid.
func (e *Engine) VerifyOTP(ctx context.Context, email, purpose, code string) error {
	if e == nil || e.otpStore == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" || !validPurpose(purpose) {
		return ErrInvalidInput
	}
	if len(code) != 6 {
		e.otpFailed(ctx, purpose, "malformed")
		return ErrOTPInvalid
	}

	_, err := e.otpStore.Verify(ctx, email, purpose, token.Hash(code), e.config.OTP.MaxAttempts)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrOTPRedisUnavailable):
			e.logger.ErrorContext(ctx, "otp verify failed", "purpose", purpose, "error", err)
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		case errors.Is(err, stores.ErrOTPAttemptsExceeded):
			e.metricInc(MetricOTPAttemptsExceeded)
			e.otpFailed(ctx, purpose, "attempts_exceeded")
		case errors.Is(err, stores.ErrOTPExpired):
			e.otpFailed(ctx, purpose, "expired")
		case errors.Is(err, stores.ErrOTPMismatch):
			e.otpFailed(ctx, purpose, "mismatch")
		default:
			e.otpFailed(ctx, purpose, "not_found")
		}
		return ErrOTPInvalid
	}

	e.metricInc(MetricOTPVerifySuccess)
	e.emitAudit(ctx, auditEventOTPVerify, true, "", "", nil, func() map[string]string {
		return map[string]string{"purpose": purpose}
	})
	return nil
}

func (e *Engine) otpFailed(ctx context.Context, purpose, reason string) {
	e.metricInc(MetricOTPVerifyFailure)
	e.emitAudit(ctx, auditEventOTPVerify, false, "", "", ErrOTPInvalid, func() map[string]string {
		return map[string]string{"purpose": purpose, "reason": reason}
	})
}
