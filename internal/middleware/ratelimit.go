package middleware

import (
	"net/http"

	"github.com/campusmarket/internal/logger"
	"github.com/campusmarket/internal/storage"
)

// RateLimit limits requests per minute, keyed by user id when authenticated
// and by client IP otherwise. Counters live in the session store (Redis in
// deployments), so limits hold across instances. A store error fails open:
// availability over strictness.
func RateLimit(store storage.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if userID := GetUserID(r.Context()); userID != "" {
				key = "u:" + userID
			}
			allowed, err := store.CheckRateLimit(r.Context(), key)
			if err != nil {
				logger.Errorf("rate limit check %s: %v", key, err)
				allowed = true
			}
			if !allowed {
				http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if x := r.Header.Get("X-Real-Ip"); x != "" {
		return x
	}
	if x := r.Header.Get("X-Forwarded-For"); x != "" {
		return x
	}
	return r.RemoteAddr
}
