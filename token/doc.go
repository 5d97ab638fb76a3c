// Package token generates and digests the opaque secrets used by siteauth:
// refresh tokens, password-reset tokens, CSRF tokens and email OTP codes.
//
// # Hashing
//
// Tokens are high-entropy, so they are digested with a single SHA-256 pass
// rather than the slow password hasher. Only digests are ever persisted;
// lookups hash the presented value and compare digests.
//
// # What this package must NOT do
//
//   - Persist or log raw tokens.
//   - Import any other siteauth package.
package token
