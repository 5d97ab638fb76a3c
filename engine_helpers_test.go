package siteauth

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/siteauth/rbac"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var testDevice = DeviceInfo{UserAgent: testUserAgent, IP: "203.0.113.7"}

type mockUserStore struct {
	mu        sync.Mutex
	users     map[string]*User
	byEmail   map[string]string
	findErr   error
	updateErr error

	updateCalls int
	touchCalls  int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (m *mockUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}
	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *m.users[id]
	return &u, nil
}

func (m *mockUserStore) FindByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (m *mockUserStore) UpdatePassword(_ context.Context, id, hash string, requireReset bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	u.RequirePasswordReset = requireReset
	return nil
}

func (m *mockUserStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.touchCalls++
	if u, ok := m.users[id]; ok {
		u.LastLoginAt = at
	}
	return nil
}

func (m *mockUserStore) Create(_ context.Context, in NewUser) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[in.Email]; ok {
		return nil, ErrUserExists
	}
	u := &User{
		ID:                   "u" + strconv.Itoa(len(m.users)+1),
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

func (m *mockUserStore) get(id string) User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

func (m *mockUserStore) setEmail(id, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	delete(m.byEmail, u.Email)
	u.Email = email
	m.byEmail[email] = id
}

func (m *mockUserStore) setActive(id string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].Active = active
}

type mockMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *mockMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockMailer) last(t *testing.T) Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("expected a sent message")
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testEnv struct {
	engine *Engine
	users  *mockUserStore
	mailer *mockMailer
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	users := newMockUserStore()
	mailer := &mockMailer{}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithMailer(mailer).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, users: users, mailer: mailer, mr: mr, rdb: rdb}
}

func (env *testEnv) addUser(t *testing.T, email, plaintext string, role rbac.Role, requireReset bool) *User {
	t.Helper()
	u, err := env.engine.CreateUser(context.Background(), CreateUserRequest{
		Email:                email,
		Name:                 "Test User",
		Password:             plaintext,
		Role:                 role,
		RequirePasswordReset: requireReset,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", email, err)
	}
	return u
}

func (env *testEnv) login(t *testing.T, email, plaintext string) *LoginResult {
	t.Helper()
	res, err := env.engine.Login(context.Background(), email, plaintext, testDevice)
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return res
}

func (env *testEnv) principal(t *testing.T, access string) *Principal {
	t.Helper()
	p, err := env.engine.ValidateAccess(context.Background(), access)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	return p
}

func requireUnauthorized(t *testing.T, env *testEnv, access string) {
	t.Helper()
	if _, err := env.engine.ValidateAccess(context.Background(), access); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
