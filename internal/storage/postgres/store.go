// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/webstack-labs/auth_gateway/internal/domain/account"
	"github.com/webstack-labs/auth_gateway/internal/storage"
)

// uniqueViolation is the PostgreSQL error code raised by the accounts email
// unique index.
const uniqueViolation = "23505"

// Store implements storage.AccountStore and storage.SessionStore on a
// PostgreSQL database. Email uniqueness is enforced by a unique index, so the
// check-then-insert race is closed at the database.
type Store struct {
	db *sql.DB
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Migrate applies the SQL migrations under sourceURL (e.g.
// "file://migrations") to the database at dsn.
func Migrate(sourceURL, dsn string) error {
	m, err := migrate.New(sourceURL, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// --- AccountStore -----------------------------------------------------------

func (s *Store) FindByEmail(ctx context.Context, email string) (account.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, created_at
		FROM accounts WHERE email = $1
	`, email))
}

func (s *Store) GetAccount(ctx context.Context, id string) (account.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, created_at
		FROM accounts WHERE id = $1
	`, id))
}

func (s *Store) scanAccount(row *sql.Row) (account.Account, error) {
	var acct account.Account
	err := row.Scan(&acct.ID, &acct.Name, &acct.Email, &acct.PasswordHash, &acct.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, storage.ErrNotFound
	}
	if err != nil {
		return account.Account{}, err
	}
	return acct, nil
}

func (s *Store) CreateAccount(ctx context.Context, name, email, password string) (account.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return account.Account{}, err
	}

	acct := account.Account{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, acct.ID, acct.Name, acct.Email, acct.PasswordHash, acct.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return account.Account{}, storage.ErrDuplicateEmail
		}
		return account.Account{}, err
	}
	return acct, nil
}

func (s *Store) VerifyCredentials(ctx context.Context, email, password string) (account.Account, error) {
	acct, err := s.FindByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		// Equalize cost for miss vs mismatch.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return account.Account{}, storage.ErrInvalidCredentials
	}
	if err != nil {
		return account.Account{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return account.Account{}, storage.ErrInvalidCredentials
	}
	return acct, nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("gateway-dummy-credential"), bcrypt.DefaultCost)

func (s *Store) WriteProfile(ctx context.Context, accountID string, patch account.ProfilePatch) (account.Profile, error) {
	now := time.Now().UTC()

	// COALESCE keeps existing columns when the patch leaves them nil, giving
	// shallow-merge semantics in a single upsert statement.
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (account_id, bio, phone, address, city, country, created_at, updated_at)
		VALUES ($1, COALESCE($2, ''), COALESCE($3, ''), COALESCE($4, ''), COALESCE($5, ''), COALESCE($6, ''), $7, $7)
		ON CONFLICT (account_id) DO UPDATE SET
			bio        = COALESCE($2, profiles.bio),
			phone      = COALESCE($3, profiles.phone),
			address    = COALESCE($4, profiles.address),
			city       = COALESCE($5, profiles.city),
			country    = COALESCE($6, profiles.country),
			updated_at = $7
		RETURNING account_id, bio, phone, address, city, country, created_at, updated_at
	`, accountID, patch.Bio, patch.Phone, patch.Address, patch.City, patch.Country, now)

	return scanProfile(row)
}

func (s *Store) GetProfile(ctx context.Context, accountID string) (account.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT account_id, bio, phone, address, city, country, created_at, updated_at
		FROM profiles WHERE account_id = $1
	`, accountID)
	return scanProfile(row)
}

func scanProfile(row *sql.Row) (account.Profile, error) {
	var p account.Profile
	err := row.Scan(&p.AccountID, &p.Bio, &p.Phone, &p.Address, &p.City, &p.Country, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Profile{}, storage.ErrNotFound
	}
	if err != nil {
		return account.Profile{}, err
	}
	return p, nil
}

func (s *Store) DeleteAccount(ctx context.Context, accountID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- SessionStore -----------------------------------------------------------

func (s *Store) CreateSession(ctx context.Context, session storage.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, account_id, token_hash, refresh_hash, expires_at, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, session.ID, session.AccountID, session.TokenHash, session.RefreshHash, session.ExpiresAt, session.CreatedAt)
	return err
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (storage.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, account_id, token_hash, refresh_hash, expires_at, created_at, last_seen_at
		FROM sessions WHERE token_hash = $1
	`, tokenHash))
}

func (s *Store) GetSessionByRefreshHash(ctx context.Context, refreshHash string) (storage.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, account_id, token_hash, refresh_hash, expires_at, created_at, last_seen_at
		FROM sessions WHERE refresh_hash = $1
	`, refreshHash))
}

func scanSession(row *sql.Row) (storage.Session, error) {
	var sess storage.Session
	err := row.Scan(&sess.ID, &sess.AccountID, &sess.TokenHash, &sess.RefreshHash, &sess.ExpiresAt, &sess.CreatedAt, &sess.LastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Session{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Session{}, err
	}
	return sess, nil
}

func (s *Store) TouchSession(ctx context.Context, id string, seenAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at = $2 WHERE id = $1`, id, seenAt)
	return err
}

func (s *Store) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return err
}

func (s *Store) DeleteSessionsByAccount(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID)
	return err
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// --- securitylog.Store ------------------------------------------------------

// AppendEntry, QueryByAccount and QueryByAction live in securitylog.go of
// this package.
