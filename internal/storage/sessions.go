package storage

import (
	"context"
	"sync"
	"time"
)

// Session is the server-held record that makes logout a real revocation: a
// token whose hash has no live session is rejected even if its signature and
// expiry still verify.
type Session struct {
	ID          string
	AccountID   string
	TokenHash   string
	RefreshHash string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	LastSeenAt  time.Time
}

// SessionStore persists session records keyed by token hash.
type SessionStore interface {
	CreateSession(ctx context.Context, session Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (Session, error)
	GetSessionByRefreshHash(ctx context.Context, refreshHash string) (Session, error)
	TouchSession(ctx context.Context, id string, seenAt time.Time) error
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	DeleteSessionsByAccount(ctx context.Context, accountID string) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error)
}

// MemorySessions is the in-process SessionStore.
type MemorySessions struct {
	mu       sync.RWMutex
	byToken  map[string]Session
	byID     map[string]string // session ID -> token hash
}

var _ SessionStore = (*MemorySessions)(nil)

// NewMemorySessions creates an empty session store.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{
		byToken: make(map[string]Session),
		byID:    make(map[string]string),
	}
}

func (s *MemorySessions) CreateSession(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byToken[session.TokenHash] = session
	s.byID[session.ID] = session.TokenHash
	return nil
}

func (s *MemorySessions) GetSessionByTokenHash(_ context.Context, tokenHash string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.byToken[tokenHash]
	if !ok {
		return Session{}, ErrNotFound
	}
	return session, nil
}

func (s *MemorySessions) GetSessionByRefreshHash(_ context.Context, refreshHash string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.byToken {
		if session.RefreshHash == refreshHash {
			return session, nil
		}
	}
	return Session{}, ErrNotFound
}

func (s *MemorySessions) TouchSession(_ context.Context, id string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokenHash, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	session := s.byToken[tokenHash]
	session.LastSeenAt = seenAt
	s.byToken[tokenHash] = session
	return nil
}

func (s *MemorySessions) DeleteSessionByTokenHash(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.byToken[tokenHash]
	if !ok {
		return ErrNotFound
	}
	delete(s.byToken, tokenHash)
	delete(s.byID, session.ID)
	return nil
}

func (s *MemorySessions) DeleteSessionsByAccount(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, session := range s.byToken {
		if session.AccountID == accountID {
			delete(s.byToken, hash)
			delete(s.byID, session.ID)
		}
	}
	return nil
}

func (s *MemorySessions) DeleteExpiredSessions(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for hash, session := range s.byToken {
		if session.ExpiresAt.Before(before) {
			delete(s.byToken, hash)
			delete(s.byID, session.ID)
			removed++
		}
	}
	return removed, nil
}
