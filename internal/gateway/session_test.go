package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webstack-labs/auth_gateway/internal/storage"
)

func newTestSessionManager(clock *fakeClock) *SessionManager {
	var now func() time.Time
	if clock != nil {
		now = clock.Now
	}
	return NewSessionManager([]byte("test-secret"), time.Hour, 24*time.Hour, "auth-gateway", storage.NewMemorySessions(), now)
}

func TestSessionIssueAndValidate(t *testing.T) {
	mgr := newTestSessionManager(nil)
	ctx := context.Background()

	pair, err := mgr.Issue(ctx, "acct-1")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.SessionID)
	assert.NotEmpty(t, pair.Token)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.Token, pair.RefreshToken)

	accountID, err := mgr.Validate(ctx, pair.Token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", accountID)
}

func TestSessionValidateRejectsGarbage(t *testing.T) {
	mgr := newTestSessionManager(nil)

	_, err := mgr.Validate(context.Background(), "not-a-token")
	assert.Error(t, err)
}

func TestSessionRevocation(t *testing.T) {
	mgr := newTestSessionManager(nil)
	ctx := context.Background()

	pair, err := mgr.Issue(ctx, "acct-1")
	require.NoError(t, err)

	mgr.Revoke(ctx, pair.Token)

	// Signature and expiry still verify, but the server-side record is gone.
	_, err = mgr.Validate(ctx, pair.Token)
	assert.Error(t, err, "revoked token must not validate")
}

func TestSessionExpiry(t *testing.T) {
	clock := newFakeClock()
	mgr := newTestSessionManager(clock)
	ctx := context.Background()

	pair, err := mgr.Issue(ctx, "acct-1")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	_, err = mgr.Validate(ctx, pair.Token)
	assert.Error(t, err, "token past its expiry must not validate")
}

func TestSessionRefreshRotatesPair(t *testing.T) {
	mgr := newTestSessionManager(nil)
	ctx := context.Background()

	pair, err := mgr.Issue(ctx, "acct-1")
	require.NoError(t, err)

	fresh, err := mgr.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.Token, fresh.Token)

	// The old session is retired with the rotation.
	_, err = mgr.Validate(ctx, pair.Token)
	assert.Error(t, err)

	accountID, err := mgr.Validate(ctx, fresh.Token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", accountID)

	// The consumed refresh credential cannot be replayed.
	_, err = mgr.Refresh(ctx, pair.RefreshToken)
	assert.Error(t, err)
}

func TestSessionRevokeAll(t *testing.T) {
	mgr := newTestSessionManager(nil)
	ctx := context.Background()

	first, err := mgr.Issue(ctx, "acct-1")
	require.NoError(t, err)
	second, err := mgr.Issue(ctx, "acct-1")
	require.NoError(t, err)

	mgr.RevokeAll(ctx, "acct-1")

	_, err = mgr.Validate(ctx, first.Token)
	assert.Error(t, err)
	_, err = mgr.Validate(ctx, second.Token)
	assert.Error(t, err)
}
