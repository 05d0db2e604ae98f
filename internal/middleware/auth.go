package middleware

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/webstack-labs/auth_gateway/internal/errors"
	"github.com/webstack-labs/auth_gateway/internal/httputil"
	"github.com/webstack-labs/auth_gateway/internal/logging"
)

// TokenValidator checks a bearer token and returns the account it belongs to.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (string, error)
}

type tokenKeyType struct{}

var tokenKey tokenKeyType

// AuthMiddleware guards protected routes with bearer token validation.
type AuthMiddleware struct {
	sessions TokenValidator
	logger   *logging.Logger
}

// NewAuthMiddleware builds the middleware around a session validator.
func NewAuthMiddleware(sessions TokenValidator, logger *logging.Logger) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, logger: logger}
}

// Handler returns the middleware handler. On success the account ID and the
// raw token are added to the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httputil.Unauthorized(w, "missing authorization")
			return
		}

		accountID, err := m.sessions.Validate(r.Context(), token)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("token validation failed")
			serviceErr := apperrors.GetServiceError(err)
			if serviceErr == nil {
				serviceErr = apperrors.Unauthorized("")
			}
			httputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)
			return
		}

		ctx := logging.WithUserID(r.Context(), accountID)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetToken returns the bearer token stashed by the auth middleware.
func GetToken(ctx context.Context) string {
	if v, ok := ctx.Value(tokenKey).(string); ok {
		return v
	}
	return ""
}

// GetUserID extracts the authenticated account ID from the request context.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
