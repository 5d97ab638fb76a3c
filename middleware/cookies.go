package middleware

import (
	"net/http"
	"time"

	"github.com/MrEthical07/siteauth"
)

// Cookie and header names shared with the browser client.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
	CSRFCookie    = "csrf_token"
	CSRFHeader    = "X-CSRF-Token"
)

// SetSessionCookies writes the three session cookies for tokens. Access and
// refresh are HttpOnly; the CSRF cookie is readable by scripts so the client
// can echo it in [CSRFHeader].
func SetSessionCookies(w http.ResponseWriter, tokens *siteauth.SessionTokens, cfg siteauth.CookieConfig) {
	if tokens == nil {
		return
	}
	http.SetCookie(w, sessionCookie(cfg, AccessCookie, tokens.AccessToken, tokens.AccessExpiresAt, true))
	http.SetCookie(w, sessionCookie(cfg, RefreshCookie, tokens.RefreshToken, tokens.RefreshExpiresAt, true))
	http.SetCookie(w, sessionCookie(cfg, CSRFCookie, tokens.CSRFToken, tokens.RefreshExpiresAt, false))
}

// ClearSessionCookies expires every session cookie.
func ClearSessionCookies(w http.ResponseWriter, cfg siteauth.CookieConfig) {
	for _, name := range []string{AccessCookie, RefreshCookie, CSRFCookie} {
		c := sessionCookie(cfg, name, "", time.Unix(0, 0), name != CSRFCookie)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func sessionCookie(cfg siteauth.CookieConfig, name, value string, expires time.Time, httpOnly bool) *http.Cookie {
	path := cfg.Path
	if path == "" {
		path = "/"
	}
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   cfg.Domain,
		Expires:  expires.UTC(),
		Secure:   cfg.Secure,
		HttpOnly: httpOnly,
		SameSite: cfg.SameSite,
	}
	if value != "" {
		if maxAge := int(time.Until(expires).Seconds()); maxAge > 0 {
			c.MaxAge = maxAge
		}
	}
	return c
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
