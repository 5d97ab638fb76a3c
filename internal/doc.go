// Package internal holds helpers private to siteauth, currently User-Agent
// classification for session device metadata.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - config: process configuration loaded with viper
//   - httpapi: the reference chi HTTP surface
//   - logging: slog logger construction
//   - mailer: log-only Mailer used when no delivery provider is wired
//   - stores: Redis stores for password-reset tokens and OTP codes
//   - userstore: Postgres user store with embedded goose migrations
//
// # What this package must NOT do
//
//   - Export types that appear in the public siteauth API.
//   - Be imported by any package outside the siteauth module.
package internal
