package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmarket/internal/middleware"
	"github.com/campusmarket/internal/model"
	"github.com/campusmarket/internal/repository"
	"github.com/campusmarket/internal/service"
	"github.com/campusmarket/internal/ws"
)

type chatFixture struct {
	router *chi.Mux
	chats  *repository.ChatRepository
	msgs   *repository.MessageRepository
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	resetTables(t)

	chatRepo := repository.NewChatRepository(testPool)
	msgRepo := repository.NewMessageRepository(testPool)
	userRepo := repository.NewUserRepository(testPool)
	productRepo := repository.NewProductRepository(testPool)
	supportRepo := repository.NewSupportRepository(testPool)

	hub := ws.NewHub(chatRepo, msgRepo, supportRepo, nil, func(string) bool { return false }, 100)
	deals := service.NewDealService(chatRepo, msgRepo, hub)
	h := NewChatHandler(chatRepo, msgRepo, userRepo, productRepo, deals, hub, nil, nil)

	r := chi.NewRouter()
	r.Post("/api/chats", h.Create)
	r.Post("/api/chats/{chatID}/messages", h.SendMessage)
	r.Post("/api/chats/{chatID}/complete-payment", h.CompletePayment)
	r.Delete("/api/chats/{chatID}", h.Delete)
	return &chatFixture{router: r, chats: chatRepo, msgs: msgRepo}
}

// do issues a request as the given user; auth middleware is bypassed by
// seeding the identity straight into the request context.
func (f *chatFixture) do(t *testing.T, userID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	ident := model.Identity{UserID: userID, Email: userID + "@campus.test"}
	req = req.WithContext(middleware.WithIdentity(req.Context(), ident))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func seedUser(t *testing.T, id string) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO users (id, email, username) VALUES ($1, $2, $3)`,
		id, id+"@campus.test", id)
	require.NoError(t, err)
}

func seedProduct(t *testing.T, id, sellerID string) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO products (id, seller_id, title) VALUES ($1, $2, $3)`,
		id, sellerID, "Desk lamp")
	require.NoError(t, err)
}

func seedChat(t *testing.T, id, productID, buyerID, sellerID string, state model.DealState) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO chats (id, product_id, buyer_id, seller_id, deal_state) VALUES ($1, $2, $3, $4, $5)`,
		id, productID, buyerID, sellerID, string(state))
	require.NoError(t, err)
}

func TestCreateChatValidatesSellerID(t *testing.T) {
	f := newChatFixture(t)
	seedUser(t, "buyer")
	seedUser(t, "seller")
	seedUser(t, "other")
	seedProduct(t, "p1", "seller")

	rec := f.do(t, "buyer", http.MethodPost, "/api/chats",
		map[string]string{"product_id": "p1", "seller_id": "other"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Matching seller_id is accepted; omitting it infers from the listing.
	rec = f.do(t, "buyer", http.MethodPost, "/api/chats",
		map[string]string{"product_id": "p1", "seller_id": "seller"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var chat model.Chat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))
	assert.Equal(t, "seller", chat.SellerID)

	rec = f.do(t, "buyer", http.MethodPost, "/api/chats",
		map[string]string{"product_id": "p1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendMessageUsesMessageField(t *testing.T) {
	f := newChatFixture(t)
	seedUser(t, "buyer")
	seedUser(t, "seller")
	seedProduct(t, "p1", "seller")
	seedChat(t, "c1", "p1", "buyer", "seller", model.DealOpen)

	rec := f.do(t, "buyer", http.MethodPost, "/api/chats/c1/messages",
		map[string]string{"message": "still available?"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var m model.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "still available?", m.Body)
	assert.Equal(t, "buyer", m.SenderID)

	rec = f.do(t, "buyer", http.MethodPost, "/api/chats/c1/messages",
		map[string]string{"body": "wrong field"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageIntoClosedDealConflicts(t *testing.T) {
	f := newChatFixture(t)
	seedUser(t, "buyer")
	seedUser(t, "seller")
	seedProduct(t, "p1", "seller")
	seedChat(t, "c1", "p1", "buyer", "seller", model.DealCompleted)

	rec := f.do(t, "buyer", http.MethodPost, "/api/chats/c1/messages",
		map[string]string{"message": "one more thing"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	msgs, err := f.msgs.ListByChat(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCancelCompletedDealConflicts(t *testing.T) {
	f := newChatFixture(t)
	seedUser(t, "buyer")
	seedUser(t, "seller")
	seedProduct(t, "p1", "seller")
	seedChat(t, "c1", "p1", "buyer", "seller", model.DealCompleted)

	rec := f.do(t, "buyer", http.MethodDelete, "/api/chats/c1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, err := f.chats.GetForParticipant(context.Background(), "c1", "buyer")
	assert.NoError(t, err)
}
