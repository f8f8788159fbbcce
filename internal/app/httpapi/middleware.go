package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

const adminHeader = "X-Admin-Token"

// WithAdminGate protects policy updates and deposits behind a shared
// administrator token. An empty token disables the gate, which is only
// acceptable for local development.
func WithAdminGate(next http.Handler, token string) http.Handler {
	token = strings.TrimSpace(token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && adminOnly(r) && r.Header.Get(adminHeader) != token {
			writeError(w, http.StatusForbidden, fmt.Errorf("administrator token required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func adminOnly(r *http.Request) bool {
	if r.Method == http.MethodPut && r.URL.Path == "/config" {
		return true
	}
	if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/accounts/") && strings.HasSuffix(r.URL.Path, "/deposit") {
		return true
	}
	return false
}

// WithRateLimit throttles requests per caller identity, falling back to the
// remote address for anonymous reads.
func WithRateLimit(next http.Handler, rps float64, burst int) http.Handler {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}

	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		lim, ok := limiters[key]
		if !ok {
			lim = rate.NewLimiter(rate.Limit(rps), burst)
			limiters[key] = lim
		}
		return lim
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(callerHeader))
		if key == "" {
			key = r.RemoteAddr
		}
		if !limiterFor(key).Allow() {
			writeError(w, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
