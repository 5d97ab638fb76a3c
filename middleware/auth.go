package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/siteauth"
	"github.com/MrEthical07/siteauth/rbac"
	"github.com/MrEthical07/siteauth/token"
)

// Validator resolves an access token into a principal. *siteauth.Engine
// implements it.
type Validator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*siteauth.Principal, error)
}

// Options tunes [Authenticate] for one route group.
type Options struct {
	// AdminOnly rejects every role but ADMIN.
	AdminOnly bool
	// MinRole, when set, rejects roles ranked below it.
	MinRole rbac.Role
	// ResetExempt lets principals with a pending forced reset through.
	ResetExempt bool
}

// Authenticate is the gate for protected routes. It reads the access token
// from the Authorization header or the access cookie, validates it through v,
// enforces double-submit CSRF on cookie-authenticated unsafe requests, applies
// opts and stores the principal in the request context.
func Authenticate(v Validator, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				writeUnauthorized(w)
				return
			}

			tok, fromCookie := accessToken(r)
			if tok == "" {
				writeUnauthorized(w)
				return
			}

			p, err := v.ValidateAccess(r.Context(), tok)
			if err != nil || p == nil {
				writeUnauthorized(w)
				return
			}

			if fromCookie && unsafeMethod(r.Method) && !ValidCSRF(r) {
				writeForbidden(w, CodeCSRFInvalid, "invalid csrf token")
				return
			}

			if opts.AdminOnly && p.Role != rbac.RoleAdmin {
				writeForbidden(w, CodeForbidden, "forbidden")
				return
			}
			if opts.MinRole.Valid() && !p.Role.AtLeast(opts.MinRole) {
				writeForbidden(w, CodeForbidden, "forbidden")
				return
			}

			if p.RequirePasswordReset && !opts.ResetExempt {
				writeForbidden(w, CodePasswordResetRequired, siteauth.ErrPasswordResetRequired.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(siteauth.WithPrincipal(r.Context(), p)))
		})
	}
}

// PrincipalFromContext returns the principal stored by [Authenticate].
func PrincipalFromContext(ctx context.Context) (*siteauth.Principal, bool) {
	return siteauth.PrincipalFromContext(ctx)
}

// RequireRoute checks the request path against the admin route table. It
// must run after [Authenticate].
func RequireRoute() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := siteauth.PrincipalFromContext(r.Context())
			if !ok {
				writeUnauthorized(w)
				return
			}
			if !rbac.CanAccessRoute(p.Role, r.URL.Path) {
				writeForbidden(w, CodeForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP records the rate-limit client identifier on the request context
// so audit events carry it.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := siteauth.WithClientIP(r.Context(), clientIdentifier(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessToken(r *http.Request) (string, bool) {
	if tok, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return tok, false
	}
	return cookieValue(r, AccessCookie), true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	tok := strings.TrimSpace(value[len(bearer):])
	if tok == "" {
		return "", false
	}

	return tok, true
}

func unsafeMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// ValidCSRF reports whether the X-CSRF-Token header matches the csrf_token
// cookie. Both must be present.
func ValidCSRF(r *http.Request) bool {
	header := r.Header.Get(CSRFHeader)
	cookie := cookieValue(r, CSRFCookie)
	if header == "" || cookie == "" {
		return false
	}
	return token.Equal(header, cookie)
}
