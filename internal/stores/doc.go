// Package stores provides Redis-backed, short-lived record stores for
// password-reset tokens and email one-time codes.
//
// # Design
//
// Records are Redis HASHes that live until their natural expiry. Nothing is
// deleted on use: consumed, superseded and exhausted records are flagged so the
// trail survives until the TTL runs out. Mutations that read before they write
// (Consume, Verify, Issue) use WATCH/MULTI optimistic transactions with retry
// on contention. Code comparisons are constant-time.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for these records. It
// does NOT generate tokens or codes, enforce rate limits, send mail, or decide
// what a failure means to the client; the Engine does.
//
// # What this package must NOT do
//
//   - Import siteauth or any sibling internal package.
//   - Store or log plaintext tokens or codes.
package stores
