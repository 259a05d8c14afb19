package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// rateLimitKey buckets requests by user when the request names one, and by
// client address otherwise.
func rateLimitKey(r *http.Request) string {
	if userID := strings.TrimSpace(chi.URLParam(r, "userID")); userID != "" {
		return "user:" + userID
	}
	if userID := strings.TrimSpace(r.URL.Query().Get("user")); userID != "" {
		return "user:" + userID
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
