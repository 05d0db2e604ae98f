package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/webstack-labs/auth_gateway/internal/errors"
	"github.com/webstack-labs/auth_gateway/internal/logging"
	"github.com/webstack-labs/auth_gateway/internal/securitylog"
	"github.com/webstack-labs/auth_gateway/internal/storage"
)

type serviceFixture struct {
	service *Service
	events  *securitylog.MemoryStore
	rec     *securitylog.Recorder
	store   *storage.Memory
}

func newServiceFixture(t *testing.T, guard *OriginGuard, maxAttempts int) *serviceFixture {
	t.Helper()

	if guard == nil {
		guard = NewOriginGuard(nil, false)
	}
	store := storage.NewMemory()
	events := securitylog.NewMemoryStore()
	rec := securitylog.NewRecorder(events, 64, nil)
	rec.Start()
	t.Cleanup(func() { _ = rec.Stop(context.Background()) })

	sessions := NewSessionManager([]byte("test-secret"), time.Hour, 24*time.Hour, "auth-gateway", storage.NewMemorySessions(), nil)
	limiter := NewSlidingWindowLimiter(15*time.Minute, maxAttempts, nil)
	policy := NewPolicy(false, nil)
	logger := logging.New("test", false)

	return &serviceFixture{
		service: NewService(store, sessions, limiter, policy, guard, rec, logger, time.Second),
		events:  events,
		rec:     rec,
		store:   store,
	}
}

// drain flushes the async security log so queries see every recorded entry.
func (f *serviceFixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.rec.Stop(ctx))
}

func meta() RequestMeta {
	return RequestMeta{ClientIP: "10.0.0.1"}
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	f := newServiceFixture(t, nil, 10)
	ctx := context.Background()

	reg, err := f.service.Register(ctx, meta(), []byte(`{"name":"Test User","email":"test@example.com","password":"testpass123"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Session.SessionID)
	assert.NotEmpty(t, reg.Session.Token)
	assert.Equal(t, "test@example.com", reg.Account.Email)

	login, err := f.service.Login(ctx, meta(), []byte(`{"email":"test@example.com","password":"testpass123"}`))
	require.NoError(t, err)
	assert.Equal(t, "Test User", login.Account.Name)
	assert.Equal(t, "test@example.com", login.Account.Email)

	// The registration seeded a profile row.
	_, profile, err := f.service.Me(ctx, reg.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, profile.AccountID)
}

func TestRegisterDuplicateEmailCaseInsensitive(t *testing.T) {
	f := newServiceFixture(t, nil, 10)
	ctx := context.Background()

	_, err := f.service.Register(ctx, meta(), []byte(`{"name":"First","email":"Test@Example.com","password":"testpass123"}`))
	require.NoError(t, err)

	_, err = f.service.Register(ctx, meta(), []byte(`{"name":"Second","email":"test@example.com","password":"testpass123"}`))
	require.Error(t, err)
	serviceErr := apperrors.GetServiceError(err)
	require.NotNil(t, serviceErr)
	assert.Equal(t, apperrors.CodeConflict, serviceErr.Code)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newServiceFixture(t, nil, 10)
	ctx := context.Background()

	_, err := f.service.Register(ctx, meta(), []byte(`{"name":"Test User","email":"test@example.com","password":"testpass123"}`))
	require.NoError(t, err)

	_, wrongPass := f.service.Login(ctx, meta(), []byte(`{"email":"test@example.com","password":"wrongpass"}`))
	_, noAccount := f.service.Login(ctx, meta(), []byte(`{"email":"ghost@example.com","password":"testpass123"}`))

	wrongErr := apperrors.GetServiceError(wrongPass)
	ghostErr := apperrors.GetServiceError(noAccount)
	require.NotNil(t, wrongErr)
	require.NotNil(t, ghostErr)

	assert.Equal(t, wrongErr.Message, ghostErr.Message, "enumeration resistance: identical messages")
	assert.Equal(t, wrongErr.HTTPStatus, ghostErr.HTTPStatus)
	assert.Equal(t, 401, wrongErr.HTTPStatus)
}

func TestUntrustedOriginIsForbiddenAndLogged(t *testing.T) {
	guard := NewOriginGuard([]string{"https://app.example.com"}, true)
	f := newServiceFixture(t, guard, 10)
	ctx := context.Background()

	m := meta()
	m.Origin = "https://evil.example"
	_, err := f.service.Login(ctx, m, []byte(`{"email":"test@example.com","password":"testpass123"}`))
	require.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	f.drain(t)
	entries, err := f.events.QueryByAction(ctx, "suspicious_origin", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, securitylog.SeverityHigh, entries[0].Severity)
}

func TestRateLimitedAttemptsAreDeniedAndLogged(t *testing.T) {
	f := newServiceFixture(t, nil, 3)
	ctx := context.Background()

	body := []byte(`{"email":"test@example.com","password":"wrong"}`)
	for i := 0; i < 3; i++ {
		_, err := f.service.Login(ctx, meta(), body)
		require.False(t, apperrors.Is(err, apperrors.CodeRateLimited), "attempt %d should not be limited", i+1)
	}

	_, err := f.service.Login(ctx, meta(), body)
	require.True(t, apperrors.Is(err, apperrors.CodeRateLimited))

	f.drain(t)
	entries, queryErr := f.events.QueryByAction(ctx, "rate_limit_exceeded", 10)
	require.NoError(t, queryErr)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 3, entries[0].Metadata["attempts"])
}

func TestLoginFailureMasksEmailInLog(t *testing.T) {
	f := newServiceFixture(t, nil, 10)
	ctx := context.Background()

	_, _ = f.service.Login(ctx, meta(), []byte(`{"email":"alice@example.com","password":"nope1234"}`))

	f.drain(t)
	entries, err := f.events.QueryByAction(ctx, "login_failed", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "al***@example.com", entries[0].EmailMasked)
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	f := newServiceFixture(t, nil, 10)
	ctx := context.Background()

	cases := []string{
		`{"email":"test@example.com","password":"testpass123"}`,
		`{"name":"Test","password":"testpass123"}`,
		`{"name":"Test","email":"test@example.com"}`,
		`[]`,
	}
	for _, body := range cases {
		_, err := f.service.Register(ctx, meta(), []byte(body))
		require.True(t, apperrors.Is(err, apperrors.CodeMalformedInput), "body %s", body)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newServiceFixture(t, nil, 10)
	ctx := context.Background()

	reg, err := f.service.Register(ctx, meta(), []byte(`{"name":"Test User","email":"test@example.com","password":"testpass123"}`))
	require.NoError(t, err)

	f.service.Logout(ctx, reg.Account.ID, reg.Session.Token)

	_, err = f.service.Sessions().Validate(ctx, reg.Session.Token)
	assert.Error(t, err)
}

func TestDeleteAccountRequiresConfirmationPhrase(t *testing.T) {
	f := newServiceFixture(t, nil, 10)
	ctx := context.Background()

	reg, err := f.service.Register(ctx, meta(), []byte(`{"name":"Test User","email":"test@example.com","password":"testpass123"}`))
	require.NoError(t, err)

	err = f.service.DeleteAccount(ctx, reg.Account.ID, "delete my account")
	require.True(t, apperrors.Is(err, apperrors.CodeMalformedInput), "lowercase phrase must not match")

	require.NoError(t, f.service.DeleteAccount(ctx, reg.Account.ID, DeleteConfirmationPhrase))

	_, _, err = f.service.Me(ctx, reg.Account.ID)
	require.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	_, err = f.service.Sessions().Validate(ctx, reg.Session.Token)
	assert.Error(t, err, "deletion revokes every session")
}

func TestUpdateProfileShallowMerge(t *testing.T) {
	f := newServiceFixture(t, nil, 10)
	ctx := context.Background()

	reg, err := f.service.Register(ctx, meta(), []byte(`{"name":"Test User","email":"test@example.com","password":"testpass123"}`))
	require.NoError(t, err)

	first, err := f.service.UpdateProfile(ctx, reg.Account.ID, []byte(`{"bio":"hello","city":"Berlin"}`))
	require.NoError(t, err)
	assert.Equal(t, "hello", first.Bio)

	second, err := f.service.UpdateProfile(ctx, reg.Account.ID, []byte(`{"country":"DE"}`))
	require.NoError(t, err)
	assert.Equal(t, "hello", second.Bio, "untouched fields survive the patch")
	assert.Equal(t, "Berlin", second.City)
	assert.Equal(t, "DE", second.Country)
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
}
