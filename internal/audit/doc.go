// Package audit carries security events (logins, refreshes, revocations,
// password and OTP activity) from the Engine to an operator-supplied sink.
//
// The [Dispatcher] queues events on a bounded channel and delivers them from
// one goroutine, so a slow sink never adds latency to a login. When the
// queue is full it either drops (counted by [Dispatcher.Dropped]) or blocks
// the caller until its context ends. Close drains whatever was queued.
//
// Before queueing, metadata keys that look like secrets (token, code,
// password, secret, hash) are removed.
//
// # What this package must NOT do
//
//   - Decide which events exist; the Engine owns event types.
//   - Import siteauth or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
