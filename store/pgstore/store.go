// Package pgstore persists users and sessions in PostgreSQL through a pgx pool.
// The schema is embedded and applied with goose by Migrate.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/code"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store/pgstore/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Store implements authcore.Storage on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. The caller owns the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn and returns a Store owning its pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema.
func (s *Store) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

var _ authcore.Storage = (*Store)(nil)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

/*
====================================
USERS
====================================
*/

const selectUser = `SELECT id, email, password_hash, verified, codes, created_at FROM users`

func (s *Store) FindByID(ctx context.Context, id string) (*authcore.User, error) {
	return s.findUser(ctx, selectUser+` WHERE id = $1`, id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.User, error) {
	return s.findUser(ctx, selectUser+` WHERE email = $1`, strings.ToLower(email))
}

func (s *Store) FindByProvider(ctx context.Context, provider, subject string) (*authcore.User, error) {
	return s.findUser(ctx, selectUser+` WHERE id = (
		SELECT user_id FROM user_providers WHERE provider = $1 AND subject = $2
	)`, provider, subject)
}

func (s *Store) findUser(ctx context.Context, query string, args ...any) (*authcore.User, error) {
	var (
		u     authcore.User
		codes []byte
	)
	err := s.pool.QueryRow(ctx, query, args...).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Verified, &codes, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authcore.ErrRecordNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if len(codes) > 0 {
		if err := json.Unmarshal(codes, &u.Codes); err != nil {
			return nil, fmt.Errorf("decode codes of %s: %w", u.ID, err)
		}
		if len(u.Codes) == 0 {
			u.Codes = nil
		}
	}

	rows, err := s.pool.Query(ctx, `SELECT provider, subject FROM user_providers WHERE user_id = $1 ORDER BY provider, subject`, u.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	links, err := pgx.CollectRows(rows, pgx.RowToStructByPos[authcore.ProviderLink])
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if len(links) > 0 {
		u.Providers = links
	}
	return &u, nil
}

func (s *Store) Create(ctx context.Context, u *authcore.User) error {
	codes, err := encodeCodes(u.Codes)
	if err != nil {
		return err
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, verified, codes, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			u.ID, strings.ToLower(u.Email), u.PasswordHash, u.Verified, codes, u.CreatedAt)
		if err != nil {
			return err
		}
		return insertProviders(ctx, tx, u.ID, u.Providers)
	})
	if pgCode(err) == pgUniqueViolation {
		return authcore.ErrRecordExists
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func insertProviders(ctx context.Context, tx pgx.Tx, userID string, links []authcore.ProviderLink) error {
	for _, p := range links {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_providers (provider, subject, user_id) VALUES ($1, $2, $3)`,
			p.Provider, p.Subject, userID); err != nil {
			return err
		}
	}
	return nil
}

// Update writes the non-nil patch fields in one transaction. Code slots are
// merged into the stored JSON object key by key.
func (s *Store) Update(ctx context.Context, id string, patch authcore.UserPatch) error {
	var (
		sets []string
		args = []any{id}
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if patch.PasswordHash != nil {
		sets = append(sets, "password_hash = "+arg(*patch.PasswordHash))
	}
	if patch.Verified != nil {
		sets = append(sets, "verified = "+arg(*patch.Verified))
	}
	if len(patch.Codes) > 0 {
		codes, err := encodeCodes(patch.Codes)
		if err != nil {
			return err
		}
		sets = append(sets, "codes = codes || "+arg(codes)+"::jsonb")
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		query := `SELECT id FROM users WHERE id = $1 FOR UPDATE`
		if len(sets) > 0 {
			query = `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING id`
		}
		var got string
		if err := tx.QueryRow(ctx, query, args...).Scan(&got); err != nil {
			return err
		}

		if patch.Providers != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM user_providers WHERE user_id = $1`, id); err != nil {
				return err
			}
			return insertProviders(ctx, tx, id, *patch.Providers)
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return authcore.ErrRecordNotFound
	case pgCode(err) == pgUniqueViolation:
		return authcore.ErrRecordExists
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrRecordNotFound
	}
	return nil
}

func encodeCodes(codes map[code.Kind]code.Slot) ([]byte, error) {
	if len(codes) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(codes)
}

/*
====================================
SESSIONS
====================================
*/

func (s *Store) Sessions(ctx context.Context, userID string) ([]session.Session, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return nil, authcore.ErrRecordNotFound
	}

	rows, err := s.pool.Query(ctx,
		`SELECT hash, ip, browser, os, device_model, device_type, device_vendor, refresh_token, created_at, last_used_at
		 FROM sessions WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (session.Session, error) {
		var sess session.Session
		err := row.Scan(&sess.Hash, &sess.IP, &sess.Browser, &sess.OS, &sess.DeviceModel, &sess.DeviceType,
			&sess.DeviceVendor, &sess.RefreshToken, &sess.CreatedAt, &sess.LastUsedAt)
		sess.CreatedAt = sess.CreatedAt.UTC()
		sess.LastUsedAt = sess.LastUsedAt.UTC()
		return sess, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return list, nil
}

func (s *Store) CreateSession(ctx context.Context, userID string, sess session.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (user_id, hash, ip, browser, os, device_model, device_type, device_vendor, refresh_token, created_at, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		userID, sess.Hash, sess.IP, sess.Browser, sess.OS, sess.DeviceModel, sess.DeviceType,
		sess.DeviceVendor, sess.RefreshToken, sess.CreatedAt, sess.LastUsedAt)
	switch pgCode(err) {
	case "":
	case pgUniqueViolation:
		return authcore.ErrRecordExists
	case pgForeignKeyViolation:
		return authcore.ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, userID string, sess session.Session) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET ip = $3, last_used_at = $4, refresh_token = $5
		 WHERE user_id = $1 AND hash = $2`,
		userID, sess.Hash, sess.IP, sess.LastUsedAt, sess.RefreshToken)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrRecordNotFound
	}
	return nil
}

// DeleteSession is idempotent.
func (s *Store) DeleteSession(ctx context.Context, userID, hash string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1 AND hash = $2`, userID, hash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
