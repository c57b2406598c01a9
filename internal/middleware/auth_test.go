package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmarket/internal/model"
	"github.com/campusmarket/internal/storage/memory"
)

func authedHandler(t *testing.T, capture *model.Identity) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*capture = GetIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthResolvesBearerToken(t *testing.T) {
	store := memory.New()
	ident := model.Identity{UserID: "u1", Email: "u1@campus.test"}
	require.NoError(t, store.SetSession(context.Background(), "tok", ident))

	var got model.Identity
	h := Auth(store)(authedHandler(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ident, got)
}

func TestAuthAcceptsTokenQueryParam(t *testing.T) {
	store := memory.New()
	ident := model.Identity{UserID: "u1", Email: "u1@campus.test"}
	require.NoError(t, store.SetSession(context.Background(), "tok", ident))

	var got model.Identity
	h := Auth(store)(authedHandler(t, &got))

	// WebSocket handshakes cannot set headers from a browser.
	req := httptest.NewRequest(http.MethodGet, "/ws?token=tok", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", got.UserID)
}

func TestAuthRejectsMissingAndUnknownTokens(t *testing.T) {
	store := memory.New()
	h := Auth(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminOnly(t *testing.T) {
	isAdmin := func(email string) bool { return email == "admin@campus.test" }
	ok := false
	h := AdminOnly(isAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/help-threads", nil)
	req = req.WithContext(WithIdentity(req.Context(), model.Identity{UserID: "u1", Email: "user@campus.test"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, ok)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/help-threads", nil)
	req = req.WithContext(WithIdentity(req.Context(), model.Identity{UserID: "a1", Email: "admin@campus.test"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ok)
}
