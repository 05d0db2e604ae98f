// Package httpapi exposes the authentication gateway over HTTP.
package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/webstack-labs/auth_gateway/internal/domain/account"
	apperrors "github.com/webstack-labs/auth_gateway/internal/errors"
	"github.com/webstack-labs/auth_gateway/internal/gateway"
	"github.com/webstack-labs/auth_gateway/internal/httputil"
	"github.com/webstack-labs/auth_gateway/internal/logging"
	"github.com/webstack-labs/auth_gateway/internal/metrics"
	"github.com/webstack-labs/auth_gateway/internal/middleware"
	"github.com/webstack-labs/auth_gateway/internal/securitylog"
)

// maxBodyBytes bounds request bodies before they reach the validator.
const maxBodyBytes = 64 << 10

// Handler bundles the gateway's HTTP endpoints.
type Handler struct {
	service *gateway.Service
	events  securitylog.Store
	logger  *logging.Logger
}

// Options configures router construction.
type Options struct {
	Production  bool
	GlobalRPS   int
	GlobalBurst int
}

// NewRouter builds the full route table with the middleware chain applied.
func NewRouter(service *gateway.Service, events securitylog.Store, logger *logging.Logger, opts Options) http.Handler {
	h := &Handler{service: service, events: events, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", h.register).Methods(http.MethodPost)
	auth.HandleFunc("/login", h.login).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)

	protected := r.PathPrefix("/auth").Subrouter()
	protected.Use(middleware.NewAuthMiddleware(service.Sessions(), logger).Handler)
	protected.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	protected.HandleFunc("/me", h.me).Methods(http.MethodGet)
	protected.HandleFunc("/profile", h.profile).Methods(http.MethodPut)
	protected.HandleFunc("/events", h.securityEvents).Methods(http.MethodGet)
	protected.HandleFunc("/account", h.deleteAccount).Methods(http.MethodDelete)

	chain := middleware.NewCORSMiddleware(service.Guard()).Handler(r)
	chain = middleware.NewGlobalRateLimiter(opts.GlobalRPS, opts.GlobalBurst, logger).Handler(chain)
	chain = middleware.SecurityHeaders(opts.Production)(chain)
	chain = metrics.InstrumentHandler(chain)
	chain = middleware.Logging(logger)(chain)
	return chain
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "auth-gateway",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.readBody(w, r)
	if !ok {
		return
	}

	result, err := h.service.Register(r.Context(), requestMeta(r), raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success":      true,
		"sessionId":    result.Session.SessionID,
		"token":        result.Session.Token,
		"refreshToken": result.Session.RefreshToken,
		"expiresAt":    result.Session.ExpiresAt,
		"user":         result.Account,
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.readBody(w, r)
	if !ok {
		return
	}

	result, err := h.service.Login(r.Context(), requestMeta(r), raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"sessionId":    result.Session.SessionID,
		"token":        result.Session.Token,
		"refreshToken": result.Session.RefreshToken,
		"expiresAt":    result.Session.ExpiresAt,
		"user": map[string]string{
			"name":  result.Account.Name,
			"email": result.Account.Email,
		},
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context(), middleware.GetUserID(r.Context()), middleware.GetToken(r.Context()))
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.readBody(w, r)
	if !ok {
		return
	}

	pair, err := h.service.Refresh(r.Context(), raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"sessionId":    pair.SessionID,
		"token":        pair.Token,
		"refreshToken": pair.RefreshToken,
		"expiresAt":    pair.ExpiresAt,
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	acct, profile, err := h.service.Me(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    acct,
		"profile": profileView(profile),
	})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.readBody(w, r)
	if !ok {
		return
	}

	profile, err := h.service.UpdateProfile(r.Context(), middleware.GetUserID(r.Context()), raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"profile": profileView(profile),
	})
}

func (h *Handler) securityEvents(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.SecurityEvents(r.Context(), h.events, middleware.GetUserID(r.Context()), securitylog.DefaultPageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"events":  entries,
	})
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.readBody(w, r)
	if !ok {
		return
	}

	body := gateway.Sanitize(raw)
	if !body.OK {
		h.writeError(w, r, apperrors.MalformedInput(body.Reason))
		return
	}

	err := h.service.DeleteAccount(r.Context(), middleware.GetUserID(r.Context()), body.String("confirmation"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, apperrors.MalformedInput("request body too large or unreadable"))
		return nil, false
	}
	return raw, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := apperrors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = apperrors.Internal("", err)
	}

	if serviceErr.HTTPStatus >= http.StatusInternalServerError {
		h.logger.WithContext(r.Context()).WithError(err).Error("request failed")
	}

	httputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)
}

func requestMeta(r *http.Request) gateway.RequestMeta {
	return gateway.RequestMeta{
		Origin:   r.Header.Get("Origin"),
		Referer:  r.Header.Get("Referer"),
		ClientIP: middleware.ClientIP(r),
	}
}

func profileView(p account.Profile) interface{} {
	if p.AccountID == "" {
		return nil
	}
	return map[string]interface{}{
		"bio":       p.Bio,
		"phone":     p.Phone,
		"address":   p.Address,
		"city":      p.City,
		"country":   p.Country,
		"createdAt": p.CreatedAt,
		"updatedAt": p.UpdatedAt,
	}
}
