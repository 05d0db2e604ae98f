package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/webstack-labs/auth_gateway/internal/domain/account"
	apperrors "github.com/webstack-labs/auth_gateway/internal/errors"
	"github.com/webstack-labs/auth_gateway/internal/logging"
	"github.com/webstack-labs/auth_gateway/internal/metrics"
	"github.com/webstack-labs/auth_gateway/internal/securitylog"
	"github.com/webstack-labs/auth_gateway/internal/storage"
)

// DeleteConfirmationPhrase must be supplied verbatim to delete an account.
const DeleteConfirmationPhrase = "DELETE MY ACCOUNT"

// invalidCredentialMessage is returned for every login failure, whether the
// account exists or not.
const invalidCredentialMessage = "invalid email or password"

// RequestMeta carries the transport-level facts each operation needs.
type RequestMeta struct {
	Origin   string
	Referer  string
	ClientIP string
}

// identifier picks the rate-limit bucket key for this request.
func (m RequestMeta) identifier(fallback string) string {
	if m.ClientIP != "" {
		return m.ClientIP
	}
	return fallback
}

// Service composes the origin guard, rate limiter, validator, credential
// policy, account store and security log into the register, login and logout
// operations. Every stage returns a tagged failure; this is the single place
// that maps failures to HTTP semantics.
type Service struct {
	accounts storage.AccountStore
	sessions *SessionManager
	limiter  AttemptLimiter
	policy   *Policy
	guard    *OriginGuard
	seclog   *securitylog.Recorder
	logger   *logging.Logger

	storeTimeout time.Duration
}

// NewService wires the gateway pipeline.
func NewService(
	accounts storage.AccountStore,
	sessions *SessionManager,
	limiter AttemptLimiter,
	policy *Policy,
	guard *OriginGuard,
	seclog *securitylog.Recorder,
	logger *logging.Logger,
	storeTimeout time.Duration,
) *Service {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Service{
		accounts:     accounts,
		sessions:     sessions,
		limiter:      limiter,
		policy:       policy,
		guard:        guard,
		seclog:       seclog,
		logger:       logger,
		storeTimeout: storeTimeout,
	}
}

// Guard exposes the origin guard for middleware reuse.
func (s *Service) Guard() *OriginGuard { return s.guard }

// Sessions exposes the session manager for middleware reuse.
func (s *Service) Sessions() *SessionManager { return s.sessions }

// storeCtx bounds a store round trip so a hung backend cannot stall the
// gateway indefinitely.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// RegisterResult is the successful outcome of Register.
type RegisterResult struct {
	Account account.Public
	Session SessionPair
}

// Register creates an account from a raw request body.
func (s *Service) Register(ctx context.Context, meta RequestMeta, raw []byte) (*RegisterResult, error) {
	if err := s.checkOrigin(ctx, meta, "registration"); err != nil {
		metrics.RecordAuthOutcome("register", "forbidden")
		return nil, err
	}

	body, err := s.admitAndSanitize(ctx, meta, "registration", raw, "")
	if err != nil {
		metrics.RecordAuthOutcome("register", failureOutcome(err))
		return nil, err
	}

	name := body.String("name")
	email := body.String("email")
	password := body.String("password")
	if name == "" || email == "" || password == "" {
		metrics.RecordAuthOutcome("register", "invalid_input")
		return nil, apperrors.MalformedInput("name, email and password are required")
	}

	emailResult := s.policy.ValidateEmail(email)
	if !emailResult.OK {
		metrics.RecordAuthOutcome("register", "policy_violation")
		return nil, apperrors.PolicyViolation(emailResult.Reason)
	}
	normalized := emailResult.Normalized

	if pw := s.policy.ValidatePassword(password); !pw.OK {
		metrics.RecordAuthOutcome("register", "policy_violation")
		return nil, apperrors.PolicyViolation(strings.Join(pw.Reasons, "; "))
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	// Pre-check for a clean conflict; the store's unique constraint remains
	// the authority under concurrency.
	if _, err := s.accounts.FindByEmail(storeCtx, normalized); err == nil {
		s.record(ctx, securitylog.Entry{
			Action:      "registration_failed",
			EmailMasked: securitylog.MaskEmail(normalized),
			Detail:      "duplicate email",
		})
		metrics.RecordAuthOutcome("register", "conflict")
		return nil, apperrors.Conflict("an account with this email already exists")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, s.storeFailure(ctx, "registration", normalized, err)
	}

	acct, err := s.accounts.CreateAccount(storeCtx, name, normalized, password)
	if errors.Is(err, storage.ErrDuplicateEmail) {
		metrics.RecordAuthOutcome("register", "conflict")
		return nil, apperrors.Conflict("an account with this email already exists")
	}
	if err != nil {
		return nil, s.storeFailure(ctx, "registration", normalized, err)
	}

	// Seed an empty profile so later reads and patches always find a row.
	if _, err := s.accounts.WriteProfile(storeCtx, acct.ID, account.ProfilePatch{}); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("profile seed write failed")
	}

	pair, err := s.sessions.Issue(ctx, acct.ID)
	if err != nil {
		return nil, s.storeFailure(ctx, "registration", normalized, err)
	}

	s.record(ctx, securitylog.Entry{
		Action:      "registration",
		AccountID:   acct.ID,
		EmailMasked: securitylog.MaskEmail(acct.Email),
		Success:     true,
	})
	metrics.RecordAuthOutcome("register", "success")

	return &RegisterResult{Account: acct.PublicView(), Session: pair}, nil
}

// LoginResult is the successful outcome of Login.
type LoginResult struct {
	Account account.Public
	Session SessionPair
}

// Login verifies credentials from a raw request body. All credential failures
// produce the identical generic message so an attacker cannot enumerate
// accounts.
func (s *Service) Login(ctx context.Context, meta RequestMeta, raw []byte) (*LoginResult, error) {
	if err := s.checkOrigin(ctx, meta, "login"); err != nil {
		metrics.RecordAuthOutcome("login", "forbidden")
		return nil, err
	}

	body, err := s.admitAndSanitize(ctx, meta, "login", raw, "")
	if err != nil {
		metrics.RecordAuthOutcome("login", failureOutcome(err))
		return nil, err
	}

	email := body.String("email")
	password := body.String("password")
	if email == "" || password == "" {
		metrics.RecordAuthOutcome("login", "invalid_input")
		return nil, apperrors.MalformedInput("email and password are required")
	}

	normalized := strings.ToLower(strings.TrimSpace(email))

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	acct, err := s.accounts.VerifyCredentials(storeCtx, normalized, password)
	if errors.Is(err, storage.ErrInvalidCredentials) {
		s.record(ctx, securitylog.Entry{
			Action:      "login_failed",
			EmailMasked: securitylog.MaskEmail(normalized),
			Detail:      "credential mismatch",
		})
		metrics.RecordAuthOutcome("login", "unauthorized")
		return nil, apperrors.Unauthorized(invalidCredentialMessage)
	}
	if err != nil {
		return nil, s.storeFailure(ctx, "login", normalized, err)
	}

	pair, err := s.sessions.Issue(ctx, acct.ID)
	if err != nil {
		return nil, s.storeFailure(ctx, "login", normalized, err)
	}

	s.record(ctx, securitylog.Entry{
		Action:      "login",
		AccountID:   acct.ID,
		EmailMasked: securitylog.MaskEmail(acct.Email),
		Success:     true,
	})
	metrics.RecordAuthOutcome("login", "success")

	return &LoginResult{Account: acct.PublicView(), Session: pair}, nil
}

// Logout revokes the session for token. It acknowledges even when the token
// is unknown; logout is idempotent.
func (s *Service) Logout(ctx context.Context, accountID, token string) {
	if token != "" {
		s.sessions.Revoke(ctx, token)
	}
	s.record(ctx, securitylog.Entry{
		Action:    "logout",
		AccountID: accountID,
		Success:   true,
	})
	metrics.RecordAuthOutcome("logout", "success")
}

// Refresh rotates a session pair from a refresh credential.
func (s *Service) Refresh(ctx context.Context, raw []byte) (*SessionPair, error) {
	body := Sanitize(raw)
	if !body.OK {
		return nil, apperrors.MalformedInput(body.Reason)
	}
	refresh := body.String("refreshToken")
	if refresh == "" {
		return nil, apperrors.MalformedInput("refreshToken is required")
	}

	pair, err := s.sessions.Refresh(ctx, refresh)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// Me returns the public account and profile for accountID.
func (s *Service) Me(ctx context.Context, accountID string) (account.Public, account.Profile, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	acct, err := s.accounts.GetAccount(storeCtx, accountID)
	if errors.Is(err, storage.ErrNotFound) {
		return account.Public{}, account.Profile{}, apperrors.NotFound("account not found")
	}
	if err != nil {
		return account.Public{}, account.Profile{}, apperrors.Unavailable(err)
	}

	profile, err := s.accounts.GetProfile(storeCtx, accountID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return account.Public{}, account.Profile{}, apperrors.Unavailable(err)
	}
	return acct.PublicView(), profile, nil
}

// UpdateProfile sanitizes and applies a partial profile update.
func (s *Service) UpdateProfile(ctx context.Context, accountID string, raw []byte) (account.Profile, error) {
	body := Sanitize(raw)
	if !body.OK {
		return account.Profile{}, apperrors.MalformedInput(body.Reason)
	}

	patch := account.ProfilePatch{}
	assign := func(key string, dst **string) {
		if v, ok := body.Cleaned[key].(string); ok {
			*dst = &v
		}
	}
	assign("bio", &patch.Bio)
	assign("phone", &patch.Phone)
	assign("address", &patch.Address)
	assign("city", &patch.City)
	assign("country", &patch.Country)

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	profile, err := s.accounts.WriteProfile(storeCtx, accountID, patch)
	if errors.Is(err, storage.ErrNotFound) {
		return account.Profile{}, apperrors.NotFound("account not found")
	}
	if err != nil {
		return account.Profile{}, apperrors.Unavailable(err)
	}

	s.record(ctx, securitylog.Entry{
		Action:    "profile_updated",
		AccountID: accountID,
		Success:   true,
	})
	return profile, nil
}

// SecurityEvents returns the account's security log page, newest first.
func (s *Service) SecurityEvents(ctx context.Context, store securitylog.Store, accountID string, limit int) ([]securitylog.Entry, error) {
	entries, err := store.QueryByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, apperrors.Unavailable(err)
	}
	return entries, nil
}

// DeleteAccount removes the account after an exact confirmation phrase match
// and revokes every session it holds.
func (s *Service) DeleteAccount(ctx context.Context, accountID, confirmation string) error {
	if confirmation != DeleteConfirmationPhrase {
		return apperrors.MalformedInput("confirmation phrase does not match")
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := s.accounts.DeleteAccount(storeCtx, accountID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NotFound("account not found")
		}
		return apperrors.Unavailable(err)
	}

	s.sessions.RevokeAll(ctx, accountID)
	s.record(ctx, securitylog.Entry{
		Action:    "account_deleted",
		AccountID: accountID,
		Success:   true,
		Severity:  securitylog.SeverityHigh,
	})
	return nil
}

// --- shared pipeline stages -------------------------------------------------

func (s *Service) checkOrigin(ctx context.Context, meta RequestMeta, action string) error {
	if s.guard.IsTrusted(meta.Origin, meta.Referer) {
		return nil
	}
	s.record(ctx, securitylog.Entry{
		Action:   "suspicious_origin",
		Detail:   action,
		Severity: securitylog.SeverityHigh,
		Metadata: map[string]interface{}{"origin": meta.Origin},
	})
	return apperrors.Forbidden()
}

// admitAndSanitize runs the rate limiter and the payload validator, the two
// stages register and login share after the origin check.
func (s *Service) admitAndSanitize(ctx context.Context, meta RequestMeta, action string, raw []byte, fallbackID string) (Body, error) {
	identifier := meta.identifier(fallbackID)
	allowed, count, err := s.limiter.Allow(ctx, identifier)
	if err != nil {
		// A broken limiter backend must not lock everyone out; admit and log.
		s.logger.WithContext(ctx).WithError(err).Error("rate limiter check failed")
		allowed = true
	}
	if !allowed {
		s.record(ctx, securitylog.Entry{
			Action:   "rate_limit_exceeded",
			Detail:   action,
			Severity: securitylog.SeverityHigh,
			Metadata: map[string]interface{}{"identifier": identifier, "attempts": count},
		})
		metrics.RecordRateLimitDenial("auth")
		return Body{}, apperrors.RateLimited()
	}

	body := Sanitize(raw)
	if !body.OK {
		return Body{}, apperrors.MalformedInput(body.Reason)
	}
	return body, nil
}

// storeFailure logs full detail server side and returns the generic
// unavailable error; internals never reach the client.
func (s *Service) storeFailure(ctx context.Context, action, email string, err error) error {
	s.logger.WithContext(ctx).WithError(err).Error("account store failure")
	s.record(ctx, securitylog.Entry{
		Action:      action + "_failed",
		EmailMasked: securitylog.MaskEmail(email),
		Detail:      "store error",
		Severity:    securitylog.SeverityHigh,
	})
	metrics.RecordAuthOutcome(action, "unavailable")
	return apperrors.Unavailable(err)
}

func (s *Service) record(ctx context.Context, entry securitylog.Entry) {
	if entry.AccountID == "" {
		entry.AccountID = logging.GetUserID(ctx)
	}
	s.seclog.Record(entry)
}

func failureOutcome(err error) string {
	if serviceErr := apperrors.GetServiceError(err); serviceErr != nil {
		return strings.ToLower(string(serviceErr.Code))
	}
	return "error"
}
