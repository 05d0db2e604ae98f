package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/webstack-labs/auth_gateway/internal/domain/account"
)

// dummyHash is compared against when the account does not exist, so a lookup
// miss costs the same as a password mismatch.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("gateway-dummy-credential"), bcrypt.DefaultCost)

// Memory is the thread-safe in-memory AccountStore used by tests and local
// development. State resets on restart.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]account.Account // by ID
	emails   map[string]string          // normalized email -> ID
	profiles map[string]account.Profile // by account ID

	now func() time.Time
}

var _ AccountStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]account.Account),
		emails:   make(map[string]string),
		profiles: make(map[string]account.Profile),
		now:      time.Now,
	}
}

func (m *Memory) FindByEmail(_ context.Context, email string) (account.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[email]
	if !ok {
		return account.Account{}, ErrNotFound
	}
	return m.accounts[id], nil
}

func (m *Memory) GetAccount(_ context.Context, id string) (account.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acct, ok := m.accounts[id]
	if !ok {
		return account.Account{}, ErrNotFound
	}
	return acct, nil
}

// CreateAccount hashes the password and inserts the account. The email
// existence check and the insert happen under one lock section, so two
// concurrent registrations with the same email cannot both succeed.
func (m *Memory) CreateAccount(_ context.Context, name, email, password string) (account.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return account.Account{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.emails[email]; exists {
		return account.Account{}, ErrDuplicateEmail
	}

	acct := account.Account{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    m.now().UTC(),
	}
	m.accounts[acct.ID] = acct
	m.emails[email] = acct.ID
	return acct, nil
}

func (m *Memory) VerifyCredentials(_ context.Context, email, password string) (account.Account, error) {
	m.mu.RLock()
	id, ok := m.emails[email]
	var acct account.Account
	if ok {
		acct = m.accounts[id]
	}
	m.mu.RUnlock()

	if !ok {
		// Burn a comparison anyway to keep miss and mismatch indistinguishable
		// by timing.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return account.Account{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return account.Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

func (m *Memory) WriteProfile(_ context.Context, accountID string, patch account.ProfilePatch) (account.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[accountID]; !ok {
		return account.Profile{}, ErrNotFound
	}

	now := m.now().UTC()
	profile, ok := m.profiles[accountID]
	if !ok {
		profile = account.Profile{AccountID: accountID, CreatedAt: now}
	}

	applyPatch(&profile, patch)
	profile.UpdatedAt = now
	m.profiles[accountID] = profile
	return profile, nil
}

func (m *Memory) GetProfile(_ context.Context, accountID string) (account.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	profile, ok := m.profiles[accountID]
	if !ok {
		return account.Profile{}, ErrNotFound
	}
	return profile, nil
}

func (m *Memory) DeleteAccount(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	delete(m.accounts, accountID)
	delete(m.emails, acct.Email)
	delete(m.profiles, accountID)
	return nil
}

func applyPatch(profile *account.Profile, patch account.ProfilePatch) {
	if patch.Bio != nil {
		profile.Bio = *patch.Bio
	}
	if patch.Phone != nil {
		profile.Phone = *patch.Phone
	}
	if patch.Address != nil {
		profile.Address = *patch.Address
	}
	if patch.City != nil {
		profile.City = *patch.City
	}
	if patch.Country != nil {
		profile.Country = *patch.Country
	}
}
