// Package siteauth is the authentication and session subsystem of the
// marketing-and-booking site: password login, rotating refresh sessions,
// forced and emailed password resets, email OTP codes and the rate budgets
// that guard them.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// siteauth is the public surface. It exposes [Engine], [Builder], [Config] and
// value types ([Principal], [SessionTokens], [LoginResult]). Components live
// in sub packages: password, token, ratelimit, rbac, session, jwt and
// middleware. Redis stores for reset tokens and OTP codes live under
// internal/stores and are never exported.
//
// # What this package must NOT do
//
//   - Persist or log raw refresh tokens, CSRF tokens, reset tokens, OTP codes
//     or password material.
//   - Change a password hash without revoking the user's sessions in the same
//     call.
//   - Import middleware or internal/httpapi (no import cycles).
package siteauth
