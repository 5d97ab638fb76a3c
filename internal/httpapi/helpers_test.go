package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/siteauth"
	"github.com/MrEthical07/siteauth/internal/logging"
	"github.com/MrEthical07/siteauth/metrics/export/prometheus"
	"github.com/MrEthical07/siteauth/middleware"
	"github.com/MrEthical07/siteauth/rbac"
)

const (
	testUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15"
	goodPassword  = "Correct-Horse-9"
	newPassword   = "Battery-Staple-42"
)

type memUsers struct {
	mu      sync.Mutex
	users   map[string]*siteauth.User
	byEmail map[string]string
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[string]*siteauth.User{}, byEmail: map[string]string{}}
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*siteauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, siteauth.ErrUserNotFound
	}
	u := *m.users[id]
	return &u, nil
}

func (m *memUsers) FindByID(_ context.Context, id string) (*siteauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, siteauth.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id, hash string, requireReset bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return siteauth.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.RequirePasswordReset = requireReset
	return nil
}

func (m *memUsers) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastLoginAt = at
	}
	return nil
}

func (m *memUsers) Create(_ context.Context, in siteauth.NewUser) (*siteauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[in.Email]; ok {
		return nil, siteauth.ErrUserExists
	}
	u := &siteauth.User{
		ID:                   "user-" + strconv.Itoa(len(m.users)+1),
		Email:                in.Email,
		Name:                 in.Name,
		PasswordHash:         in.PasswordHash,
		Role:                 in.Role,
		Active:               true,
		RequirePasswordReset: in.RequirePasswordReset,
		CreatedAt:            time.Now(),
	}
	m.users[u.ID] = u
	m.byEmail[u.Email] = u.ID
	out := *u
	return &out, nil
}

type captureMailer struct {
	mu   sync.Mutex
	sent []siteauth.Message
}

func (m *captureMailer) Send(_ context.Context, msg siteauth.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// last waits briefly for a message; reset emails are sent in the background.
func (m *captureMailer) last(t *testing.T) siteauth.Message {
	t.Helper()
	var msg siteauth.Message
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if len(m.sent) == 0 {
			return false
		}
		msg = m.sent[len(m.sent)-1]
		return true
	}, 2*time.Second, 5*time.Millisecond, "expected a sent message")
	return msg
}

type testAPI struct {
	server  *Server
	handler http.Handler
	engine  *siteauth.Engine
	users   *memUsers
	mailer  *captureMailer
	mr      *miniredis.Miniredis
}

type apiOptions struct {
	ready  ReadyFunc
	mutate func(*siteauth.Config)
}

// newTestAPI wires a real Engine over miniredis and an in-memory user table.
func newTestAPI(t *testing.T, opts apiOptions) *testAPI {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := siteauth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.PasswordReset.ResetURL = "https://example.test/reset-password"
	if opts.mutate != nil {
		opts.mutate(&cfg)
	}

	users := newMemUsers()
	mailer := &captureMailer{}
	log := discardLogger()

	engine, err := siteauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithMailer(mailer).
		WithLogger(log).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	srv, err := New(Deps{
		Engine:  engine,
		Logger:  log,
		Metrics: prometheus.NewExporter(engine).Handler(),
		Ready:   opts.ready,
		Version: "test",
	})
	require.NoError(t, err)

	return &testAPI{
		server:  srv,
		handler: srv.Handler(),
		engine:  engine,
		users:   users,
		mailer:  mailer,
		mr:      mr,
	}
}

func (a *testAPI) addUser(t *testing.T, email string, role rbac.Role, requireReset bool) *siteauth.User {
	t.Helper()
	u, err := a.engine.CreateUser(context.Background(), siteauth.CreateUserRequest{
		Email:                email,
		Name:                 "Test User",
		Password:             goodPassword,
		Role:                 role,
		RequirePasswordReset: requireReset,
	})
	require.NoError(t, err)
	return u
}

// browser keeps cookies between requests and echoes the CSRF cookie on
// unsafe methods, the way the site's frontend does.
type browser struct {
	t       *testing.T
	handler http.Handler
	ip      string
	cookies map[string]string
}

func (a *testAPI) browser(t *testing.T, ip string) *browser {
	return &browser{t: t, handler: a.handler, ip: ip, cookies: map[string]string{}}
}

func (b *browser) do(method, path string, body any) *httptest.ResponseRecorder {
	b.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(b.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", testUserAgent)
	req.Header.Set("X-Forwarded-For", b.ip)
	for name, value := range b.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if csrf, ok := b.cookies[middleware.CSRFCookie]; ok && method != http.MethodGet {
		req.Header.Set(middleware.CSRFHeader, csrf)
	}

	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c.Value
	}
	return rec
}

func (b *browser) login(email, plaintext string) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.do(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": plaintext})
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func requireCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, "body: %s", rec.Body.String())
	require.Equal(t, code, decodeBody(t, rec)["code"])
}

func discardLogger() *slog.Logger {
	return logging.New(logging.Config{Level: "error", Writer: io.Discard}, "test")
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

// httpDo sends a raw request without cookies.
func httpDo(h http.Handler, method, path string, body io.Reader, opts ...requestOption) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
