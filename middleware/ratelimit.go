package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrEthical07/siteauth"
	"github.com/MrEthical07/siteauth/ratelimit"
)

// RateChecker draws from a named budget. *siteauth.Engine implements it.
type RateChecker interface {
	CheckRate(ctx context.Context, budget siteauth.RateBudget, identifier string) error
}

// RateLimit charges one unit of budget per request, keyed by client
// identifier. Exhaustion answers 429 with Retry-After; a counter backend
// failure answers 503 and the request is not served.
func RateLimit(c RateChecker, budget siteauth.RateBudget) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := c.CheckRate(r.Context(), budget, clientIdentifier(r))
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			var limited *siteauth.RateLimitError
			if errors.As(err, &limited) {
				WriteRateLimited(w, limited.RetryAfter)
				return
			}
			WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, "service unavailable")
		})
	}
}

// WriteRateLimited writes a 429 with Retry-After in whole seconds.
func WriteRateLimited(w http.ResponseWriter, retryAfter int) {
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteError(w, http.StatusTooManyRequests, CodeRateLimited, "too many requests, retry after "+strconv.Itoa(retryAfter)+" seconds")
}

func clientIdentifier(r *http.Request) string {
	return ratelimit.ClientIdentifier(r)
}
