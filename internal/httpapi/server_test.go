package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/siteauth"
	"github.com/MrEthical07/siteauth/middleware"
	"github.com/MrEthical07/siteauth/rbac"
)

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Deps{Logger: discardLogger()})
	require.Error(t, err)

	api := newTestAPI(t, apiOptions{})
	_, err = New(Deps{Engine: api.engine})
	require.Error(t, err)
}

func TestCloseBeforeStart(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	require.NoError(t, api.server.Close())
}

func TestStartAndClose(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	srv, err := New(Deps{Addr: "127.0.0.1:0", Engine: api.engine, Logger: discardLogger()})
	require.NoError(t, err)

	require.NoError(t, srv.Start(context.Background()))
	require.Error(t, srv.Start(context.Background()))
	require.NoError(t, srv.Close())
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t, apiOptions{})

	rec := httpDo(api.handler, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody(t, rec)["status"])

	api.mr.SetError("ERR simulated outage")
	rec = httpDo(api.handler, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthzChecksReady(t *testing.T) {
	api := newTestAPI(t, apiOptions{ready: func(context.Context) error { return errors.New("database down") }})

	rec := httpDo(api.handler, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "unavailable", decodeBody(t, rec)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.addUser(t, "editor@example.com", rbac.RoleEditor, false)
	require.Equal(t, http.StatusOK, api.browser(t, "198.51.100.30").login("editor@example.com", goodPassword).Code)

	rec := httpDo(api.handler, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "siteauth_login_success_total 1")
	require.Contains(t, rec.Body.String(), "siteauth_session_created_total 1")
}

func TestRateLimitBackendFailureFailsClosed(t *testing.T) {
	api := newTestAPI(t, apiOptions{mutate: func(cfg *siteauth.Config) {
		cfg.RateLimit.Backend = "redis"
	}})
	api.addUser(t, "editor@example.com", rbac.RoleEditor, false)

	api.mr.SetError("ERR simulated outage")
	rec := api.browser(t, "198.51.100.31").login("editor@example.com", goodPassword)
	requireCode(t, rec, http.StatusServiceUnavailable, middleware.CodeUnavailable)
	require.Empty(t, rec.Result().Cookies())
}

func TestRequestIDHeader(t *testing.T) {
	api := newTestAPI(t, apiOptions{})

	rec := httpDo(api.handler, http.MethodGet, "/healthz", nil, func(r *http.Request) {
		r.Header.Set("X-Request-ID", "req-123")
	})
	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	rec = httpDo(api.handler, http.MethodGet, "/healthz", nil)
	require.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestRecoveryMiddleware(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	h := api.server.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	requireCode(t, rec, http.StatusInternalServerError, codeInternal)
}

func TestAdminResetPassword(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	admin := api.addUser(t, "admin@example.com", rbac.RoleAdmin, false)
	editor := api.addUser(t, "editor@example.com", rbac.RoleEditor, false)

	adminBrowser := api.browser(t, "198.51.100.40")
	editorBrowser := api.browser(t, "198.51.100.41")
	require.Equal(t, http.StatusOK, adminBrowser.login("admin@example.com", goodPassword).Code)
	require.Equal(t, http.StatusOK, editorBrowser.login("editor@example.com", goodPassword).Code)

	path := "/api/admin/users/" + editor.ID + "/reset-password"
	body := map[string]string{"temporary_password": "Temporary-Pass-1"}

	requireCode(t, editorBrowser.do(http.MethodPost, "/api/admin/users/"+admin.ID+"/reset-password", body), http.StatusForbidden, middleware.CodeForbidden)

	self := adminBrowser.do(http.MethodPost, "/api/admin/users/"+admin.ID+"/reset-password", body)
	requireCode(t, self, http.StatusForbidden, codeSelfReset)

	missing := adminBrowser.do(http.MethodPost, "/api/admin/users/nobody/reset-password", body)
	requireCode(t, missing, http.StatusNotFound, codeNotFound)

	rec := adminBrowser.do(http.MethodPost, path, body)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	requireCode(t, editorBrowser.do(http.MethodGet, "/api/auth/me", nil), http.StatusUnauthorized, middleware.CodeUnauthorized)
	require.Equal(t, http.StatusOK, adminBrowser.do(http.MethodGet, "/api/auth/me", nil).Code)

	relogin := api.browser(t, "198.51.100.42").login("editor@example.com", "Temporary-Pass-1")
	require.Equal(t, http.StatusOK, relogin.Code)
	require.Equal(t, true, decodeBody(t, relogin)["require_password_reset"])
}

func TestAdminAccessCheck(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.addUser(t, "editor@example.com", rbac.RoleEditor, false)
	b := api.browser(t, "198.51.100.50")
	require.Equal(t, http.StatusOK, b.login("editor@example.com", goodPassword).Code)

	cases := []struct {
		path    string
		allowed bool
	}{
		{"/admin", true},
		{"/admin/tours/new", true},
		{"/admin/bookings", false},
		{"/admin/users", false},
	}
	for _, tc := range cases {
		rec := b.do(http.MethodGet, "/api/admin/access?path="+tc.path, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		require.Equal(t, tc.allowed, body["allowed"], tc.path)
		require.Equal(t, "EDITOR", body["role"])
	}

	requireCode(t, b.do(http.MethodGet, "/api/admin/access", nil), http.StatusBadRequest, codeInvalidInput)

	anon := httpDo(api.handler, http.MethodGet, "/api/admin/access?path=/admin", nil)
	requireCode(t, anon, http.StatusUnauthorized, middleware.CodeUnauthorized)
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	rec := httpDo(api.handler, http.MethodGet, "/api/auth/nope", strings.NewReader(""))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
