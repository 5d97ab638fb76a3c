package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Budget is a named fixed-window allowance.
type Budget struct {
	Name   string
	Limit  int
	Window time.Duration
}

// General is the default budget for ordinary API endpoints.
func General() Budget { return Budget{Name: "general", Limit: 5, Window: time.Minute} }

// Login is the default budget for credential submission.
func Login() Budget { return Budget{Name: "login", Limit: 5, Window: 15 * time.Minute} }

// Reset is the default budget for password-reset link requests.
func Reset() Budget { return Budget{Name: "reset", Limit: 3, Window: time.Hour} }

// ResetConfirm is the default budget for redeeming reset links.
func ResetConfirm() Budget { return Budget{Name: "reset_confirm", Limit: 10, Window: time.Hour} }

// Store increments a windowed counter. The returned ttl is the time left in
// the window that count belongs to.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// Result is the outcome of one Consume call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter int
}

// Limiter draws from a single Budget.
type Limiter struct {
	budget Budget
	store  Store
}

// New returns a Limiter over store.
func New(store Store, budget Budget) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidBudget)
	}
	if budget.Limit <= 0 || budget.Window <= 0 || budget.Name == "" {
		return nil, ErrInvalidBudget
	}
	return &Limiter{budget: budget, store: store}, nil
}

// Budget returns the limiter's budget.
func (l *Limiter) Budget() Budget {
	return l.budget
}

// Consume records one request for identifier and reports whether it fits the
// budget. An empty identifier is treated as "unknown".
func (l *Limiter) Consume(ctx context.Context, identifier string) (Result, error) {
	if identifier == "" {
		identifier = UnknownClient
	}

	count, ttl, err := l.store.Increment(ctx, l.key(identifier), l.budget.Window)
	if err != nil {
		return Result{}, err
	}

	res := Result{Limit: l.budget.Limit}
	if count <= int64(l.budget.Limit) {
		res.Allowed = true
		res.Remaining = l.budget.Limit - int(count)
		return res, nil
	}

	res.RetryAfter = retrySeconds(ttl, l.budget.Window)
	return res, nil
}

func (l *Limiter) key(identifier string) string {
	return "rl:" + l.budget.Name + ":" + identifier
}

// retrySeconds rounds ttl up to whole seconds, never below one. A store that
// cannot report ttl falls back to the full window.
func retrySeconds(ttl, window time.Duration) int {
	if ttl <= 0 {
		ttl = window
	}
	secs := int((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
