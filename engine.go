package siteauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/siteauth/internal"
	"github.com/MrEthical07/siteauth/internal/audit"
	"github.com/MrEthical07/siteauth/internal/stores"
	"github.com/MrEthical07/siteauth/jwt"
	"github.com/MrEthical07/siteauth/password"
	"github.com/MrEthical07/siteauth/ratelimit"
	"github.com/MrEthical07/siteauth/rbac"
	"github.com/MrEthical07/siteauth/session"
	"github.com/MrEthical07/siteauth/token"
)

// Engine is the session manager and the only writer of session, reset-token
// and OTP records. It is safe for concurrent use once built.
type Engine struct {
	config         Config
	sessionStore   *session.Store
	resetStore     *stores.PasswordResetStore
	otpStore       *stores.OTPStore
	userStore      UserStore
	mailer         Mailer
	logger         *slog.Logger
	audit          *audit.Dispatcher
	metrics        *Metrics
	generalLimiter *ratelimit.Limiter
	loginLimiter   *ratelimit.Limiter
	resetLimiter   *ratelimit.Limiter
	confirmLimiter *ratelimit.Limiter
	passwordHash   password.Hasher
	dummyHash      string
	jwtManager     *jwt.Manager
	now            func() time.Time

	// forgot-password equalization
	enumerationDelay func(context.Context) error
	deliveryLatency  atomic.Int64
	mailWG           sync.WaitGroup
}

// Close waits for background reset emails, then drains the audit
// dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mailWG.Wait()
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports events dropped under dispatcher backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// CookieConfig returns the cookie settings the HTTP layer should use.
func (e *Engine) CookieConfig() CookieConfig {
	return e.config.Cookie
}

// PasswordPolicy returns the active strength policy.
func (e *Engine) PasswordPolicy() password.Policy {
	return e.config.Password.Policy
}

// Ping checks the session backend.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	if _, err := e.sessionStore.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

/*
====================================
SESSIONS
====================================
*/

// CreateSession starts a session for sub and returns its tokens. The raw
// refresh and CSRF tokens exist only in the returned value.
func (e *Engine) CreateSession(ctx context.Context, sub SessionSubject, dev DeviceInfo) (*SessionTokens, error) {
	tokens, _, err := e.createSession(ctx, sub, dev)
	return tokens, err
}

func (e *Engine) createSession(ctx context.Context, sub SessionSubject, dev DeviceInfo) (*SessionTokens, *session.Session, error) {
	if e == nil || e.sessionStore == nil || e.jwtManager == nil {
		return nil, nil, ErrEngineNotReady
	}
	if sub.UserID == "" || !sub.Role.Valid() {
		return nil, nil, ErrInvalidInput
	}

	refresh, err := token.Generate()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}
	csrf, err := token.Generate()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	now := e.clock()
	class := internal.ParseUserAgent(dev.UserAgent)
	sess := &session.Session{
		SchemaVersion:        session.CurrentSchemaVersion,
		ID:                   token.NewID(),
		UserID:               sub.UserID,
		Email:                normalizeEmail(sub.Email),
		Role:                 sub.Role.String(),
		RequirePasswordReset: sub.RequirePasswordReset,
		RefreshHash:          token.Hash(refresh),
		Active:               true,
		Device: session.Device{
			Device:    class.Device,
			Browser:   class.Browser,
			OS:        class.OS,
			IP:        dev.IP,
			UserAgent: dev.UserAgent,
		},
		CreatedAt: now,
		ExpiresAt: e.refreshExpiry(now, now),
	}

	if err := e.sessionStore.Save(ctx, sess); err != nil {
		e.logger.ErrorContext(ctx, "session save failed", "user_id", sub.UserID, "error", err)
		e.emitAudit(ctx, auditEventSessionCreated, false, sub.UserID, "", ErrSessionCreationFailed, nil)
		return nil, nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	access, accessExp, err := e.jwtManager.CreateAccess(jwt.Subject{
		UserID:               sess.UserID,
		SessionID:            sess.ID,
		Email:                sess.Email,
		Role:                 sess.Role,
		RequirePasswordReset: sess.RequirePasswordReset,
	})
	if err != nil {
		if _, rerr := e.sessionStore.Revoke(ctx, sess.ID); rerr != nil {
			e.logger.WarnContext(ctx, "revoke after signing failure failed", "session_id", sess.ID, "error", rerr)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionCreated, true, sess.UserID, sess.ID, nil, func() map[string]string {
		return map[string]string{"device": class.Device, "browser": class.Browser, "os": class.OS}
	})

	return &SessionTokens{
		SessionID:        sess.ID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: sess.ExpiresAt,
		CSRFToken:        csrf,
	}, sess, nil
}

// RefreshSession rotates refreshToken. Every failure, whatever its cause, is
// ErrRefreshInvalid; of concurrent refreshes with one token exactly one wins.
func (e *Engine) RefreshSession(ctx context.Context, refreshToken string) (*SessionTokens, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	if err := token.Validate(refreshToken); err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrRefreshInvalid
	}

	next, err := token.Generate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshInvalid, err)
	}
	csrf, err := token.Generate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshInvalid, err)
	}

	sess, err := e.sessionStore.Rotate(
		ctx,
		token.Hash(refreshToken),
		token.Hash(next),
		e.config.Session.RefreshTTL,
		e.config.Session.AbsoluteLifetime,
	)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, session.ErrRedisUnavailable) {
			e.logger.ErrorContext(ctx, "refresh rotation failed", "error", err)
		}
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", "", ErrRefreshInvalid, nil)
		return nil, ErrRefreshInvalid
	}

	access, accessExp, err := e.jwtManager.CreateAccess(jwt.Subject{
		UserID:               sess.UserID,
		SessionID:            sess.ID,
		Email:                sess.Email,
		Role:                 sess.Role,
		RequirePasswordReset: sess.RequirePasswordReset,
	})
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.logger.ErrorContext(ctx, "access token signing failed", "session_id", sess.ID, "error", err)
		return nil, ErrRefreshInvalid
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, sess.UserID, sess.ID, nil, nil)

	return &SessionTokens{
		SessionID:        sess.ID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     next,
		RefreshExpiresAt: sess.ExpiresAt,
		CSRFToken:        csrf,
	}, nil
}

// ValidateAccess verifies accessToken and then the session it names; the
// session record is authoritative for revocation and expiry. Every failure
// is ErrUnauthorized.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*Principal, error) {
	if e == nil || e.jwtManager == nil || e.sessionStore == nil {
		return nil, ErrUnauthorized
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		e.metricInc(MetricAccessDenied)
		return nil, ErrUnauthorized
	}

	sess, err := e.sessionStore.Get(ctx, claims.SID)
	if err != nil {
		e.metricInc(MetricAccessDenied)
		if errors.Is(err, session.ErrRedisUnavailable) {
			e.logger.ErrorContext(ctx, "session lookup failed", "session_id", claims.SID, "error", err)
		}
		return nil, ErrUnauthorized
	}
	if !sess.Usable(e.clock()) || sess.UserID != claims.UID {
		e.metricInc(MetricAccessDenied)
		return nil, ErrUnauthorized
	}

	role, err := rbac.ParseRole(sess.Role)
	if err != nil {
		e.metricInc(MetricAccessDenied)
		return nil, ErrUnauthorized
	}

	return &Principal{
		UserID:               sess.UserID,
		Email:                sess.Email,
		Role:                 role,
		SessionID:            sess.ID,
		RequirePasswordReset: sess.RequirePasswordReset,
	}, nil
}

// Logout revokes one session. Revoking an already revoked session succeeds.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	if sessionID == "" {
		return ErrInvalidInput
	}

	sess, err := e.sessionStore.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if _, err := e.sessionStore.Revoke(ctx, sessionID); err != nil {
		e.emitAudit(ctx, auditEventLogout, false, sess.UserID, sessionID, ErrSessionInvalidationFailed, nil)
		return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogout, true, sess.UserID, sessionID, nil, nil)
	return nil
}

// RevokeAllUserSessions revokes every session of userID except
// exceptSessionID, which may be empty.
func (e *Engine) RevokeAllUserSessions(ctx context.Context, userID, exceptSessionID string) error {
	_, err := e.revokeAll(ctx, userID, exceptSessionID)
	return err
}

func (e *Engine) revokeAll(ctx context.Context, userID, exceptSessionID string) (int, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrInvalidInput
	}

	n, err := e.sessionStore.RevokeAllForUser(ctx, userID, exceptSessionID)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, exceptSessionID, ErrSessionInvalidationFailed, nil)
		return 0, fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}

	e.metricInc(MetricLogoutAll)
	for i := 0; i < n; i++ {
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, exceptSessionID, nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(n)}
	})
	return n, nil
}

// ListSessions returns every retained session of userID, newest first.
// currentSessionID, when non-empty, is flagged Current.
func (e *Engine) ListSessions(ctx context.Context, userID, currentSessionID string) ([]SessionSummary, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrInvalidInput
	}

	sessions, err := e.sessionStore.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := e.clock()
	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summary := summarizeSession(s, now)
		summary.Current = s.ID == currentSessionID
		out = append(out, summary)
	}
	return out, nil
}

func (e *Engine) refreshExpiry(createdAt, now time.Time) time.Time {
	exp := now.Add(e.config.Session.RefreshTTL)
	if lifetime := e.config.Session.AbsoluteLifetime; lifetime > 0 {
		if limit := createdAt.Add(lifetime); exp.After(limit) {
			exp = limit
		}
	}
	return exp
}

func summarizeSession(s *session.Session, now time.Time) SessionSummary {
	return SessionSummary{
		ID:        s.ID,
		Device:    s.Device.Device,
		Browser:   s.Device.Browser,
		OS:        s.Device.OS,
		IP:        s.Device.IP,
		Active:    s.Usable(now),
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

/*
====================================
RATE LIMITS
====================================
*/

// CheckRate draws one unit from budget for identifier. An exhausted budget
// returns a *RateLimitError; a counter backend failure wraps
// ErrRedisUnavailable.
func (e *Engine) CheckRate(ctx context.Context, budget RateBudget, identifier string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	limiter := e.limiter(budget)
	if limiter == nil {
		return ErrEngineNotReady
	}

	res, err := limiter.Consume(ctx, identifier)
	if err != nil {
		e.logger.ErrorContext(ctx, "rate limit store failed", "budget", budget.String(), "error", err)
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if res.Allowed {
		return nil
	}

	if budget == BudgetLogin {
		e.metricInc(MetricLoginRateLimited)
	}
	e.emitRateLimit(ctx, budget.String(), identifier)
	return &RateLimitError{Budget: budget.String(), RetryAfter: res.RetryAfter}
}

func (e *Engine) limiter(budget RateBudget) *ratelimit.Limiter {
	switch budget {
	case BudgetLogin:
		return e.loginLimiter
	case BudgetReset:
		return e.resetLimiter
	case BudgetResetConfirm:
		return e.confirmLimiter
	default:
		return e.generalLimiter
	}
}
