package middleware

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/webstack-labs/auth_gateway/internal/httputil"
	"github.com/webstack-labs/auth_gateway/internal/logging"
	"github.com/webstack-labs/auth_gateway/internal/metrics"
)

// GlobalRateLimiter throttles the whole HTTP surface per client IP with token
// buckets. It is a coarse outer guard; the sliding-window attempt limiter
// inside the orchestrator is the one the authentication rules are stated in
// terms of.
type GlobalRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	logger   *logging.Logger
}

// NewGlobalRateLimiter creates a limiter admitting requestsPerSecond with the
// given burst per client.
func NewGlobalRateLimiter(requestsPerSecond, burst int, logger *logging.Logger) *GlobalRateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 50
	}
	if burst <= 0 {
		burst = requestsPerSecond * 2
	}
	return &GlobalRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		logger:   logger,
	}
}

func (rl *GlobalRateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Handler returns the rate limiting middleware handler.
func (rl *GlobalRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := logging.GetUserID(r.Context())
		if key == "" {
			key = ClientIP(r)
		}

		if !rl.getLimiter(key).Allow() {
			rl.logger.LogSecurityEvent(r.Context(), "rate_limit_exceeded", map[string]interface{}{
				"key":  key,
				"path": r.URL.Path,
			})
			metrics.RecordRateLimitDenial("global")
			httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorBody{
				Code:  "RATE_LIMITED",
				Error: "too many requests, please try again later",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
