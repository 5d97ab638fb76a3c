package httpapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/siteauth/middleware"
	"github.com/MrEthical07/siteauth/rbac"
)

func TestLoginSetsSessionCookies(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.addUser(t, "editor@example.com", rbac.RoleEditor, false)
	b := api.browser(t, "198.51.100.1")

	rec := b.login("  Editor@Example.com ", goodPassword)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	user := body["user"].(map[string]any)
	require.Equal(t, "editor@example.com", user["email"])
	require.Equal(t, "EDITOR", user["role"])
	require.Equal(t, false, body["require_password_reset"])
	require.Equal(t, b.cookies[middleware.CSRFCookie], body["csrf_token"])
	require.NotContains(t, rec.Body.String(), b.cookies[middleware.AccessCookie])
	require.NotContains(t, rec.Body.String(), b.cookies[middleware.RefreshCookie])

	session := body["session"].(map[string]any)
	require.Equal(t, "Safari", session["browser"])
	require.Equal(t, "198.51.100.1", session["ip"])

	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case middleware.AccessCookie, middleware.RefreshCookie:
			require.True(t, c.HttpOnly, c.Name)
		case middleware.CSRFCookie:
			require.False(t, c.HttpOnly)
		}
		require.True(t, c.Secure, c.Name)
	}

	me := b.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())
	require.Equal(t, "editor@example.com", decodeBody(t, me)["email"])
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.addUser(t, "editor@example.com", rbac.RoleEditor, false)
	b := api.browser(t, "198.51.100.2")

	wrong := b.login("editor@example.com", "Wrong-Password-1")
	unknown := b.login("nobody@example.com", goodPassword)

	requireCode(t, wrong, http.StatusUnauthorized, codeInvalidCredentials)
	requireCode(t, unknown, http.StatusUnauthorized, codeInvalidCredentials)
	require.Equal(t, wrong.Body.String(), unknown.Body.String())
	require.Empty(t, b.cookies)
}

func TestLoginBudgetExhausted(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	b := api.browser(t, "198.51.100.3")

	for i := 0; i < 5; i++ {
		rec := b.login("nobody@example.com", "Wrong-Password-1")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := b.login("nobody@example.com", "Wrong-Password-1")
	requireCode(t, rec, http.StatusTooManyRequests, middleware.CodeRateLimited)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	other := api.browser(t, "198.51.100.4").login("nobody@example.com", "Wrong-Password-1")
	require.Equal(t, http.StatusUnauthorized, other.Code)
}

func TestLoginRejectsMalformedBody(t *testing.T) {
	api := newTestAPI(t, apiOptions{})

	req := strings.NewReader(`{"email":`)
	rec := httpDo(api.handler, http.MethodPost, "/api/auth/login", req)
	requireCode(t, rec, http.StatusBadRequest, codeInvalidInput)

	huge := strings.NewReader(`{"email":"` + strings.Repeat("a", maxRequestBodySize) + `"}`)
	rec = httpDo(api.handler, http.MethodPost, "/api/auth/login", huge)
	requireCode(t, rec, http.StatusRequestEntityTooLarge, codeInvalidInput)
}

func TestRefreshRotatesTokens(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.addUser(t, "editor@example.com", rbac.RoleEditor, false)
	b := api.browser(t, "198.51.100.5")
	require.Equal(t, http.StatusOK, b.login("editor@example.com", goodPassword).Code)

	oldRefresh := b.cookies[middleware.RefreshCookie]
	oldCSRF := b.cookies[middleware.CSRFCookie]

	rec := b.do(http.MethodPost, "/api/auth/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEqual(t, oldRefresh, b.cookies[middleware.RefreshCookie])
	require.NotEqual(t, oldCSRF, b.cookies[middleware.CSRFCookie])
	require.Equal(t, b.cookies[middleware.CSRFCookie], decodeBody(t, rec)["csrf_token"])

	replay := api.browser(t, "198.51.100.5")
	replay.cookies[middleware.RefreshCookie] = oldRefresh
	replay.cookies[middleware.CSRFCookie] = oldCSRF
	rec = replay.do(http.MethodPost, "/api/auth/refresh", nil)
	requireCode(t, rec, http.StatusUnauthorized, middleware.CodeUnauthorized)
	require.Empty(t, replay.cookies)

	require.Equal(t, http.StatusOK, b.do(http.MethodGet, "/api/auth/me", nil).Code)
}

func TestRefreshRequiresCSRF(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.addUser(t, "editor@example.com", rbac.RoleEditor, false)
	b := api.browser(t, "198.51.100.7")
	require.Equal(t, http.StatusOK, b.login("editor@example.com", goodPassword).Code)
	refresh := b.cookies[middleware.RefreshCookie]

	for name, header := range map[string]string{"missing": "", "mismatch": "forged-value"} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
		req.Header.Set("X-Forwarded-For", "198.51.100.7")
		for cookie, value := range b.cookies {
			req.AddCookie(&http.Cookie{Name: cookie, Value: value})
		}
		if header != "" {
			req.Header.Set(middleware.CSRFHeader, header)
		}
		rec := httptest.NewRecorder()
		api.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code, name)
		require.Equal(t, middleware.CodeCSRFInvalid, decodeBody(t, rec)["code"], name)
	}

	rec := b.do(http.MethodPost, "/api/auth/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code, "refresh token must survive rejected attempts: %s", rec.Body.String())
	require.NotEqual(t, refresh, b.cookies[middleware.RefreshCookie])
}

func TestRefreshWithoutCookie(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	rec := api.browser(t, "198.51.100.6").do(http.MethodPost, "/api/auth/refresh", nil)
	requireCode(t, rec, http.StatusUnauthorized, middleware.CodeUnauthorized)
}

func TestLogoutRevokesSession(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.addUser(t, "editor@example.com", rbac.RoleEditor, false)
	b := api.browser(t, "198.51.100.7")
	require.Equal(t, http.StatusOK, b.login("editor@example.com", goodPassword).Code)
	access := b.cookies[middleware.AccessCookie]

	rec := b.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	require.Empty(t, b.cookies)

	stale := httpDo(api.handler, http.MethodGet, "/api/auth/me", nil, withBearer(access))
	requireCode(t, stale, http.StatusUnauthorized, middleware.CodeUnauthorized)
}

func TestLogoutRequiresCSRFHeader(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.addUser(t, "editor@example.com", rbac.RoleEditor, false)
	b := api.browser(t, "198.51.100.8")
	require.Equal(t, http.StatusOK, b.login("editor@example.com", goodPassword).Code)

	delete(b.cookies, middleware.CSRFCookie)
	rec := b.do(http.MethodPost, "/api/auth/logout", nil)
	requireCode(t, rec, http.StatusForbidden, middleware.CodeCSRFInvalid)
}

func TestForcedResetFlow(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.addUser(t, "flagged@example.com", rbac.RoleEditor, true)
	b := api.browser(t, "198.51.100.9")

	rec := b.login("flagged@example.com", goodPassword)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decodeBody(t, rec)["require_password_reset"])

	requireCode(t, b.do(http.MethodGet, "/api/auth/me", nil), http.StatusForbidden, middleware.CodePasswordResetRequired)

	weak := b.do(http.MethodPost, "/api/auth/complete-reset", map[string]string{"new_password": "short"})
	requireCode(t, weak, http.StatusBadRequest, codePasswordPolicy)
	require.NotEmpty(t, decodeBody(t, weak)["violations"])

	rec = b.do(http.MethodPost, "/api/auth/complete-reset", map[string]string{"new_password": newPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	me := b.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())
	require.Equal(t, false, decodeBody(t, me)["require_password_reset"])

	again := b.do(http.MethodPost, "/api/auth/complete-reset", map[string]string{"new_password": "Another-Pass-77"})
	requireCode(t, again, http.StatusForbidden, middleware.CodeForbidden)
}

func TestChangePassword(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.addUser(t, "editor@example.com", rbac.RoleEditor, false)
	b := api.browser(t, "198.51.100.10")
	other := api.browser(t, "198.51.100.11")
	require.Equal(t, http.StatusOK, b.login("editor@example.com", goodPassword).Code)
	require.Equal(t, http.StatusOK, other.login("editor@example.com", goodPassword).Code)

	wrong := b.do(http.MethodPost, "/api/auth/change-password", map[string]string{
		"current_password": "Wrong-Password-1",
		"new_password":     newPassword,
	})
	requireCode(t, wrong, http.StatusBadRequest, codeInvalidCurrentPassword)

	reuse := b.do(http.MethodPost, "/api/auth/change-password", map[string]string{
		"current_password": goodPassword,
		"new_password":     goodPassword,
	})
	requireCode(t, reuse, http.StatusBadRequest, codePasswordReuse)

	rec := b.do(http.MethodPost, "/api/auth/change-password", map[string]string{
		"current_password": goodPassword,
		"new_password":     newPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Equal(t, http.StatusOK, b.do(http.MethodGet, "/api/auth/me", nil).Code)
	requireCode(t, other.do(http.MethodGet, "/api/auth/me", nil), http.StatusUnauthorized, middleware.CodeUnauthorized)
	require.Equal(t, http.StatusOK, api.browser(t, "198.51.100.12").login("editor@example.com", newPassword).Code)
}

func TestSessionsList(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.addUser(t, "editor@example.com", rbac.RoleEditor, false)
	b := api.browser(t, "198.51.100.13")
	require.Equal(t, http.StatusOK, b.login("editor@example.com", goodPassword).Code)
	require.Equal(t, http.StatusOK, api.browser(t, "198.51.100.14").login("editor@example.com", goodPassword).Code)

	rec := b.do(http.MethodGet, "/api/auth/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sessions := decodeBody(t, rec)["sessions"].([]any)
	require.Len(t, sessions, 2)
	current := 0
	for _, s := range sessions {
		if s.(map[string]any)["current"] == true {
			current++
		}
	}
	require.Equal(t, 1, current)
}

func TestForgotAndResetPassword(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.addUser(t, "editor@example.com", rbac.RoleEditor, false)
	b := api.browser(t, "198.51.100.15")

	unknown := b.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "nobody@example.com"})
	known := b.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "editor@example.com"})
	require.Equal(t, http.StatusAccepted, unknown.Code)
	require.Equal(t, http.StatusAccepted, known.Code)
	require.Equal(t, unknown.Body.String(), known.Body.String())

	msg := api.mailer.last(t)
	link, err := url.Parse(msg.Link)
	require.NoError(t, err)
	require.Equal(t, msg.Token, link.Query().Get("token"))

	rec := b.do(http.MethodPost, "/api/auth/reset-password", map[string]string{"token": msg.Token, "password": newPassword})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = b.do(http.MethodPost, "/api/auth/reset-password", map[string]string{"token": msg.Token, "password": "Another-Pass-77"})
	requireCode(t, rec, http.StatusUnauthorized, codeInvalidToken)

	require.Equal(t, http.StatusOK, api.browser(t, "198.51.100.16").login("editor@example.com", newPassword).Code)
}

func TestResetBudgetExhausted(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	b := api.browser(t, "198.51.100.17")

	for i := 0; i < 3; i++ {
		rec := b.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "nobody@example.com"})
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec := b.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "nobody@example.com"})
	requireCode(t, rec, http.StatusTooManyRequests, middleware.CodeRateLimited)

	// redeeming a link draws from its own budget
	rec = b.do(http.MethodPost, "/api/auth/reset-password", map[string]string{"token": "x", "password": newPassword})
	requireCode(t, rec, http.StatusUnauthorized, codeInvalidToken)
}

func TestResetConfirmBudgetExhausted(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	b := api.browser(t, "198.51.100.19")

	for i := 0; i < 10; i++ {
		rec := b.do(http.MethodPost, "/api/auth/reset-password", map[string]string{"token": "x", "password": newPassword})
		requireCode(t, rec, http.StatusUnauthorized, codeInvalidToken)
	}
	rec := b.do(http.MethodPost, "/api/auth/reset-password", map[string]string{"token": "x", "password": newPassword})
	requireCode(t, rec, http.StatusTooManyRequests, middleware.CodeRateLimited)
}

func TestOTPRequestAndVerify(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	b := api.browser(t, "198.51.100.18")

	rec := b.do(http.MethodPost, "/api/auth/otp/request", map[string]string{"email": "guest@example.com", "purpose": "registration"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	code := api.mailer.last(t).Code
	require.Len(t, code, 6)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	rec = b.do(http.MethodPost, "/api/auth/otp/verify", map[string]string{"email": "guest@example.com", "purpose": "registration", "code": wrong})
	requireCode(t, rec, http.StatusUnauthorized, codeInvalidCode)

	rec = b.do(http.MethodPost, "/api/auth/otp/verify", map[string]string{"email": "guest@example.com", "purpose": "registration", "code": code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, decodeBody(t, rec)["verified"])

	bad := b.do(http.MethodPost, "/api/auth/otp/request", map[string]string{"email": "guest@example.com", "purpose": "marketing"})
	requireCode(t, bad, http.StatusBadRequest, codeInvalidInput)
}

func TestPasswordPolicyEndpoint(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	rec := httpDo(api.handler, http.MethodGet, "/api/auth/password-policy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, float64(8), body["min_length"])
	require.Equal(t, true, body["require_special"])
}
