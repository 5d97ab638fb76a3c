// Package httpapi is the site's authentication HTTP surface: a chi router
// over a [siteauth.Engine] with request-id, access-log, recovery and
// body-limit middleware.
//
// Routes live under /api/auth and /api/admin. Session cookies and CSRF are
// handled by the middleware package; this package only maps requests onto
// engine calls and engine errors onto status codes.
//
// # What this package must NOT do
//
//   - Log tokens, codes, passwords or cookie values.
//   - Reveal whether an email belongs to an account.
package httpapi
