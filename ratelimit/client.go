package ratelimit

import (
	"net/http"
	"strings"
)

// UnknownClient is the identifier used when a request carries no client address headers.
const UnknownClient = "unknown"

// ClientIdentifier derives the rate-limit key for r: the first entry of
// X-Forwarded-For, else X-Real-IP, else UnknownClient. RemoteAddr is not used
// because the site runs behind a proxy.
func ClientIdentifier(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	return UnknownClient
}
