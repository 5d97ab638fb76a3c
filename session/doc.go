// Package session provides Redis-backed persistence for login sessions and the
// atomic refresh-token rotation they depend on.
//
// # Layout
//
// Each session is a Redis HASH kept until its refresh expiry, including after
// revocation, so the record remains as an audit trail. Two indexes sit beside it:
//
//	<prefix>:s:<sessionID>    HASH   session fields
//	<prefix>:r:<digest>       STRING refresh digest -> session ID
//	<prefix>:u:<userID>       SET    session IDs owned by the user
//
// Revocation flips active to 0 and drops the refresh index entry. Nothing moves
// a session from revoked back to active.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does NOT parse JWTs,
// evaluate roles, or decide what a failed lookup means to a client; those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import siteauth, jwt, or rbac (no upward imports).
//   - Store raw refresh tokens. Only digests reach Redis.
package session
