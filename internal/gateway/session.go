package gateway

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/webstack-labs/auth_gateway/internal/errors"
	"github.com/webstack-labs/auth_gateway/internal/storage"
)

// Claims are the JWT claims carried by a session token.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// SessionPair is the credential pair returned by login and register: a
// short-lived signed token plus a longer-lived opaque refresh credential.
type SessionPair struct {
	SessionID    string    `json:"sessionId"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// SessionManager issues and validates session tokens. Tokens are signed and
// expiring (HS256, subject/iat/exp), and every issued token has a server-held
// session record so revocation on logout is effective.
type SessionManager struct {
	secret     []byte
	ttl        time.Duration
	refreshTTL time.Duration
	issuer     string
	store      storage.SessionStore
	now        func() time.Time
}

// NewSessionManager builds a SessionManager. A nil now func defaults to
// time.Now.
func NewSessionManager(secret []byte, ttl, refreshTTL time.Duration, issuer string, store storage.SessionStore, now func() time.Time) *SessionManager {
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		secret:     secret,
		ttl:        ttl,
		refreshTTL: refreshTTL,
		issuer:     issuer,
		store:      store,
		now:        now,
	}
}

// Issue creates a signed token and refresh credential for accountID and
// records the session server side.
func (m *SessionManager) Issue(ctx context.Context, accountID string) (SessionPair, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)

	claims := &Claims{
		UserID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return SessionPair{}, err
	}

	refresh, err := randomToken()
	if err != nil {
		return SessionPair{}, err
	}

	session := storage.Session{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		TokenHash:   HashToken(token),
		RefreshHash: HashToken(refresh),
		ExpiresAt:   now.Add(m.refreshTTL),
		CreatedAt:   now,
		LastSeenAt:  now,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return SessionPair{}, err
	}

	return SessionPair{
		SessionID:    session.ID,
		Token:        token,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

// Validate checks the token signature and expiry, then requires a live
// server-side session for it. Returns the account ID on success.
func (m *SessionManager) Validate(ctx context.Context, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", apperrors.InvalidToken(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", apperrors.InvalidToken(nil)
	}

	session, err := m.store.GetSessionByTokenHash(ctx, HashToken(tokenString))
	if err != nil {
		return "", apperrors.Unauthorized("session expired")
	}

	_ = m.store.TouchSession(ctx, session.ID, m.now())
	return claims.UserID, nil
}

// Revoke deletes the session record for the token. Unknown tokens are a
// no-op; logout is idempotent.
func (m *SessionManager) Revoke(ctx context.Context, tokenString string) {
	_ = m.store.DeleteSessionByTokenHash(ctx, HashToken(tokenString))
}

// RevokeAll deletes every session belonging to the account.
func (m *SessionManager) RevokeAll(ctx context.Context, accountID string) {
	_ = m.store.DeleteSessionsByAccount(ctx, accountID)
}

// Refresh exchanges a live refresh credential for a fresh session pair,
// retiring the old session.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (SessionPair, error) {
	session, err := m.store.GetSessionByRefreshHash(ctx, HashToken(refreshToken))
	if err != nil {
		return SessionPair{}, apperrors.Unauthorized("invalid refresh token")
	}
	if session.ExpiresAt.Before(m.now()) {
		_ = m.store.DeleteSessionByTokenHash(ctx, session.TokenHash)
		return SessionPair{}, apperrors.Unauthorized("refresh token expired")
	}

	_ = m.store.DeleteSessionByTokenHash(ctx, session.TokenHash)
	return m.Issue(ctx, session.AccountID)
}

// SweepExpired removes sessions whose refresh horizon has passed.
func (m *SessionManager) SweepExpired(ctx context.Context) (int, error) {
	return m.store.DeleteExpiredSessions(ctx, m.now())
}

// HashToken returns the hex sha256 of a token; only hashes are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
