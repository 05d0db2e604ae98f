// Package storage defines the narrow interface the gateway uses to reach the
// persistent account store, with an in-memory implementation for tests and
// development and a PostgreSQL implementation for production.
package storage

import (
	"context"
	"errors"

	"github.com/webstack-labs/auth_gateway/internal/domain/account"
)

// Sentinel errors shared by every backend.
var (
	// ErrDuplicateEmail means an account with that normalized email already
	// exists. Backends enforce uniqueness atomically; callers may pre-check
	// for a cleaner conflict response, but the store is the authority.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrNotFound means no matching record exists.
	ErrNotFound = errors.New("account not found")

	// ErrInvalidCredentials is returned by VerifyCredentials for both a
	// missing account and a wrong password, so callers cannot distinguish the
	// two.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AccountStore is the capability interface over the persistent account and
// profile store. Every operation is fallible and honors context deadlines.
type AccountStore interface {
	// FindByEmail looks up an account by normalized email.
	FindByEmail(ctx context.Context, email string) (account.Account, error)

	// GetAccount looks up an account by ID.
	GetAccount(ctx context.Context, id string) (account.Account, error)

	// CreateAccount inserts a new account, hashing the password at this
	// boundary. The existence check and insert are a single atomic step.
	CreateAccount(ctx context.Context, name, email, password string) (account.Account, error)

	// VerifyCredentials compares the supplied password against the stored
	// hash and returns the account on match.
	VerifyCredentials(ctx context.Context, email, password string) (account.Account, error)

	// WriteProfile upserts the account's profile: created if absent, shallow
	// merged if present, UpdatedAt stamped either way.
	WriteProfile(ctx context.Context, accountID string, patch account.ProfilePatch) (account.Profile, error)

	// GetProfile returns the account's profile.
	GetProfile(ctx context.Context, accountID string) (account.Profile, error)

	// DeleteAccount removes the account and its profile. Callers gate this
	// behind the explicit confirmation phrase.
	DeleteAccount(ctx context.Context, accountID string) error
}
