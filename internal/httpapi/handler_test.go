package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/webstack-labs/auth_gateway/internal/gateway"
	"github.com/webstack-labs/auth_gateway/internal/logging"
	"github.com/webstack-labs/auth_gateway/internal/securitylog"
	"github.com/webstack-labs/auth_gateway/internal/storage"
)

func newTestRouter(t *testing.T, maxAttempts int) http.Handler {
	t.Helper()

	accounts := storage.NewMemory()
	sessions := storage.NewMemorySessions()
	events := securitylog.NewMemoryStore()
	logger := logging.New("test", false)

	rec := securitylog.NewRecorder(events, 64, nil)
	rec.Start()
	t.Cleanup(func() { _ = rec.Stop(context.Background()) })

	service := gateway.NewService(
		accounts,
		gateway.NewSessionManager([]byte("test-secret"), time.Hour, 24*time.Hour, "auth-gateway", sessions, nil),
		gateway.NewSlidingWindowLimiter(15*time.Minute, maxAttempts, nil),
		gateway.NewPolicy(false, nil),
		gateway.NewOriginGuard(nil, false),
		rec,
		logger,
		time.Second,
	)

	return NewRouter(service, events, logger, Options{GlobalRPS: 1000, GlobalBurst: 1000})
}

func doJSON(t *testing.T, router http.Handler, method, path, body string, decorate func(*http.Request)) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != "" {
		reqBody = bytes.NewBufferString(body)
	} else {
		reqBody = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if decorate != nil {
		decorate(req)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	decoded := map[string]interface{}{}
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("response body is not JSON: %q", rr.Body.String())
		}
	}
	return rr, decoded
}

func TestRegisterLoginLogoutFlow(t *testing.T) {
	router := newTestRouter(t, 100)

	rr, body := doJSON(t, router, http.MethodPost, "/auth/register",
		`{"name":"Test User","email":"test@example.com","password":"testpass123"}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201 (body %s)", rr.Code, rr.Body.String())
	}
	sessionID, _ := body["sessionId"].(string)
	if sessionID == "" {
		t.Fatal("register returned an empty session identifier")
	}

	rr, body = doJSON(t, router, http.MethodPost, "/auth/login",
		`{"email":"test@example.com","password":"testpass123"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200", rr.Code)
	}
	user, _ := body["user"].(map[string]interface{})
	if user["email"] != "test@example.com" {
		t.Fatalf("login user.email = %v, want test@example.com", user["email"])
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("login returned an empty token")
	}

	withToken := func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }

	rr, body = doJSON(t, router, http.MethodGet, "/auth/me", "", withToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("me status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}

	rr, _ = doJSON(t, router, http.MethodPost, "/auth/logout", "", withToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", rr.Code)
	}

	// The revoked token no longer opens protected routes.
	rr, _ = doJSON(t, router, http.MethodGet, "/auth/me", "", withToken)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout status = %d, want 401", rr.Code)
	}
}

func TestLoginEnumerationResistance(t *testing.T) {
	router := newTestRouter(t, 100)

	doJSON(t, router, http.MethodPost, "/auth/register",
		`{"name":"Test User","email":"test@example.com","password":"testpass123"}`, nil)

	wrongPass, wrongBody := doJSON(t, router, http.MethodPost, "/auth/login",
		`{"email":"test@example.com","password":"wrongpass"}`, nil)
	noAccount, ghostBody := doJSON(t, router, http.MethodPost, "/auth/login",
		`{"email":"ghost@example.com","password":"testpass123"}`, nil)

	if wrongPass.Code != http.StatusUnauthorized || noAccount.Code != http.StatusUnauthorized {
		t.Fatalf("statuses = %d/%d, want 401/401", wrongPass.Code, noAccount.Code)
	}
	if wrongBody["error"] != ghostBody["error"] {
		t.Fatalf("error messages differ: %q vs %q", wrongBody["error"], ghostBody["error"])
	}
}

func TestRapidLoginAttemptsAreRateLimited(t *testing.T) {
	router := newTestRouter(t, 10)

	doJSON(t, router, http.MethodPost, "/auth/register",
		`{"name":"Test User","email":"test@example.com","password":"testpass123"}`, nil)

	// The register attempt consumed one slot; keep going until the budget is
	// exhausted. The 12th rapid attempt overall must be denied.
	var last *httptest.ResponseRecorder
	for i := 0; i < 11; i++ {
		last, _ = doJSON(t, router, http.MethodPost, "/auth/login",
			`{"email":"test@example.com","password":"wrongpass"}`, nil)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("12th rapid attempt status = %d, want 429", last.Code)
	}
}

func TestSecurityHeadersOnEveryResponse(t *testing.T) {
	router := newTestRouter(t, 100)

	paths := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/health", ""},
		{http.MethodPost, "/auth/login", `{"email":"ghost@example.com","password":"x"}`},
		{http.MethodGet, "/auth/me", ""},
	}

	for _, tc := range paths {
		rr, _ := doJSON(t, router, tc.method, tc.path, tc.body, nil)
		if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
			t.Fatalf("%s %s X-Frame-Options = %q, want DENY", tc.method, tc.path, got)
		}
		if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Fatalf("%s %s X-Content-Type-Options = %q, want nosniff", tc.method, tc.path, got)
		}
		if rr.Header().Get("Content-Security-Policy") == "" {
			t.Fatalf("%s %s missing Content-Security-Policy", tc.method, tc.path)
		}
	}
}

func TestUntrustedOriginRejected(t *testing.T) {
	router := newTestRouter(t, 100)

	rr, _ := doJSON(t, router, http.MethodPost, "/auth/register",
		`{"name":"Test User","email":"test@example.com","password":"testpass123"}`,
		func(r *http.Request) { r.Header.Set("Origin", "https://evil.example") })
	if rr.Code != http.StatusForbidden {
		t.Fatalf("register with untrusted origin status = %d, want 403", rr.Code)
	}
}

func TestMalformedBodiesRejected(t *testing.T) {
	router := newTestRouter(t, 100)

	cases := []string{`null`, `[]`, `"text"`, `{"name":`}
	for _, body := range cases {
		rr, _ := doJSON(t, router, http.MethodPost, "/auth/register", body, nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("register body %q status = %d, want 400", body, rr.Code)
		}
	}
}

func TestProfileAndEventsEndpoints(t *testing.T) {
	router := newTestRouter(t, 100)

	_, regBody := doJSON(t, router, http.MethodPost, "/auth/register",
		`{"name":"Test User","email":"test@example.com","password":"testpass123"}`, nil)
	token, _ := regBody["token"].(string)
	withToken := func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }

	rr, body := doJSON(t, router, http.MethodPut, "/auth/profile",
		`{"bio":"hello","city":"Berlin"}`, withToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("profile update status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	profile, _ := body["profile"].(map[string]interface{})
	if profile["bio"] != "hello" {
		t.Fatalf("profile.bio = %v, want hello", profile["bio"])
	}

	rr, _ = doJSON(t, router, http.MethodGet, "/auth/events", "", withToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("events status = %d, want 200", rr.Code)
	}
}

func TestDeleteAccountEndpoint(t *testing.T) {
	router := newTestRouter(t, 100)

	_, regBody := doJSON(t, router, http.MethodPost, "/auth/register",
		`{"name":"Test User","email":"test@example.com","password":"testpass123"}`, nil)
	token, _ := regBody["token"].(string)
	withToken := func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }

	rr, _ := doJSON(t, router, http.MethodDelete, "/auth/account",
		`{"confirmation":"nope"}`, withToken)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("delete with wrong phrase status = %d, want 400", rr.Code)
	}

	rr, _ = doJSON(t, router, http.MethodDelete, "/auth/account",
		`{"confirmation":"DELETE MY ACCOUNT"}`, withToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}

	// The account is gone; the old credentials no longer work.
	rr, _ = doJSON(t, router, http.MethodPost, "/auth/login",
		`{"email":"test@example.com","password":"testpass123"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("login after deletion status = %d, want 401", rr.Code)
	}
}
