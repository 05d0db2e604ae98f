package middleware

import "net/http"

// OriginPolicy answers whether a declared origin/referer pair is trusted.
type OriginPolicy interface {
	IsTrusted(origin, referer string) bool
}

// CORSMiddleware reflects trusted origins in CORS response headers and
// answers preflight requests. The hard origin rejection for auth operations
// lives in the orchestrator; this layer only decorates responses for
// browsers.
type CORSMiddleware struct {
	policy OriginPolicy
}

// NewCORSMiddleware builds the middleware on the shared origin policy.
func NewCORSMiddleware(policy OriginPolicy) *CORSMiddleware {
	return &CORSMiddleware{policy: policy}
}

// Handler returns the CORS middleware handler.
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && m.policy.IsTrusted(origin, "") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Trace-ID")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
