// Package password implements credential hashing, verification and the
// password strength policy.
//
// # Output format
//
// [Argon2] hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Bcrypt] produces standard $2a$ strings. Both satisfy [Hasher]; Verify never
// returns an error and reports malformed or foreign hashes as a mismatch.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other siteauth package.
//   - Log plaintext passwords.
package password
