package ratelimit

import "errors"

var (
	// ErrStoreUnavailable wraps backend failures from a counter store.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
	// ErrInvalidBudget is returned by New for a non-positive limit or window.
	ErrInvalidBudget = errors.New("invalid rate limit budget")
)
