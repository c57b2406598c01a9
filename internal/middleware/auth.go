package middleware

import (
	"net/http"
	"strings"

	"github.com/campusmarket/internal/storage"
)

// BearerToken extracts the credential from "Authorization: Bearer <token>",
// falling back to the token query parameter (used by WebSocket handshakes,
// where browsers cannot set headers).
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// Auth resolves the bearer credential to an identity via the session store.
// Requests without a valid token get 401 before reaching any handler; the
// same resolution is applied to push-channel handshakes, so the two layers
// can never disagree about who a caller is.
func Auth(store storage.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ident, err := store.GetSession(r.Context(), token)
			if err != nil || ident.UserID == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
		})
	}
}

// AdminOnly rejects authenticated callers whose email is not on the admin
// allow-list. Must run after Auth.
func AdminOnly(isAdmin func(email string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident := GetIdentity(r.Context())
			if ident.UserID == "" || !isAdmin(ident.Email) {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
