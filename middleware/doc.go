// Package middleware adapts the siteauth Engine to net/http.
//
// # Gates
//
//   - [Authenticate] validates the access token (Authorization bearer or
//     access cookie), enforces double-submit CSRF on cookie-authenticated
//     unsafe methods, applies the admin and minimum-role options, blocks
//     principals with a pending forced reset and stores the principal.
//   - [RequireRoute] checks the admin UI route table.
//   - [RateLimit] charges one budget per request and answers 429.
//
// [SetSessionCookies] and [ClearSessionCookies] own the cookie layout.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Token parsing,
// session lookups and counters all live behind [Validator] and [RateChecker].
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis.
//   - Log or echo token values.
package middleware
