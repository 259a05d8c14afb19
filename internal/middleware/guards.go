package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/somepatt/tgbot-search-films/internal/logging"
)

// TokenVerifier checks an adapter bearer token.
type TokenVerifier interface {
	Verify(token string) error
}

// RequireToken rejects requests whose Authorization header does not carry a
// bearer token accepted by verifier. A nil verifier lets every request through.
func RequireToken(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if err := verifier.Verify(strings.TrimSpace(token)); err != nil {
				logging.FromContext(r.Context()).Warn("adapter token rejected", "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="cinemabot"`)
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit rejects requests once the caller identified by key exhausts its
// budget. A nil limiter disables the check.
func RateLimit(limiter RateLimiter, key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(key(r)) {
				logging.FromContext(r.Context()).Warn("request rate limited")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
