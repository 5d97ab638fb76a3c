// Package ratelimit provides fixed-window request budgets keyed by client
// identity.
//
// # Window semantics
//
// The first hit in a window creates the counter and arms its expiry; later
// hits only increment. A request is allowed while the post-increment count is
// within the budget limit. Once exhausted, callers are blocked until the
// window expires, and RetryAfter reports the whole seconds remaining.
//
// Budgets are namespaced so the same client identifier draws independently
// from the general, login and reset budgets:
//   - rl:general:<id>
//   - rl:login:<id>
//   - rl:reset:<id>
//
// # Stores
//
// [MemoryStore] is a single-process map guarded by a mutex. [RedisStore]
// shares counters across instances.
//
// # What this package must NOT do
//
//   - Decide which endpoints consume which budget (the HTTP layer does).
//   - Import the root siteauth package.
package ratelimit
