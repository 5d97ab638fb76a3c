// Package userstore is the PostgreSQL implementation of siteauth.UserStore.
package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/siteauth"
	"github.com/MrEthical07/siteauth/internal/userstore/migrations"
	"github.com/MrEthical07/siteauth/rbac"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Postgres error codes the store translates.
const (
	pgUniqueViolation  = "23505"
	pgInvalidTextInput = "22P02"
)

// DBTX is the subset of database/sql used by the store. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore reads and writes the users table.
type PostgresStore struct {
	db DBTX
}

var _ siteauth.UserStore = (*PostgresStore)(nil)

func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects through the pgx database/sql driver and pings once.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

const userColumns = `id, email, name, password_hash, role, active, require_password_reset, last_login_at, created_at`

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*siteauth.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE email = $1
		 `
	return s.scanOne(s.db.QueryRowContext(ctx, query, email))
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*siteauth.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE id = $1
		 `
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// UpdatePassword replaces the hash and the forced-reset flag together.
func (s *PostgresStore) UpdatePassword(ctx context.Context, id, passwordHash string, requireReset bool) error {
	query :=
		`UPDATE users SET password_hash = $2, require_password_reset = $3, updated_at = now()
		 WHERE id = $1
		 `
	res, err := s.db.ExecContext(ctx, query, id, passwordHash, requireReset)
	if err != nil {
		if isCode(err, pgInvalidTextInput) {
			return siteauth.ErrUserNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return siteauth.ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	query :=
		`UPDATE users SET last_login_at = $2
		 WHERE id = $1
		 `
	if _, err := s.db.ExecContext(ctx, query, id, at.UTC()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Create inserts an active user. A duplicate email is siteauth.ErrUserExists.
func (s *PostgresStore) Create(ctx context.Context, in siteauth.NewUser) (*siteauth.User, error) {
	query :=
		`INSERT INTO users (email, name, password_hash, role, require_password_reset)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at
		 `

	u := &siteauth.User{
		Email:                in.Email,
		Name:                 in.Name,
		PasswordHash:         in.PasswordHash,
		Role:                 in.Role,
		Active:               true,
		RequirePasswordReset: in.RequirePasswordReset,
	}
	err := s.db.QueryRowContext(ctx, query,
		in.Email, in.Name, in.PasswordHash, in.Role.String(), in.RequirePasswordReset).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isCode(err, pgUniqueViolation) {
			return nil, siteauth.ErrUserExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) scanOne(row *sql.Row) (*siteauth.User, error) {
	var (
		u         siteauth.User
		role      string
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.Active, &u.RequirePasswordReset, &lastLogin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isCode(err, pgInvalidTextInput) {
			return nil, siteauth.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	// An unknown role stays RoleUnknown; Login refuses it.
	u.Role, _ = rbac.ParseRole(role)
	if lastLogin.Valid {
		u.LastLoginAt = lastLogin.Time
	}
	return &u, nil
}

func isCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
