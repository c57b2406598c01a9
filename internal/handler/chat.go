package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campusmarket/internal/email"
	"github.com/campusmarket/internal/logger"
	"github.com/campusmarket/internal/middleware"
	"github.com/campusmarket/internal/model"
	"github.com/campusmarket/internal/repository"
	"github.com/campusmarket/internal/service"
	"github.com/campusmarket/internal/ws"
)

type ChatHandler struct {
	chatRepo    *repository.ChatRepository
	msgRepo     *repository.MessageRepository
	userRepo    *repository.UserRepository
	productRepo *repository.ProductRepository
	deals       *service.DealService
	hub         *ws.Hub
	push        ws.PushNotifier
	mail        *email.Sender
}

func NewChatHandler(
	chatRepo *repository.ChatRepository,
	msgRepo *repository.MessageRepository,
	userRepo *repository.UserRepository,
	productRepo *repository.ProductRepository,
	deals *service.DealService,
	hub *ws.Hub,
	push ws.PushNotifier,
	mail *email.Sender,
) *ChatHandler {
	return &ChatHandler{
		chatRepo:    chatRepo,
		msgRepo:     msgRepo,
		userRepo:    userRepo,
		productRepo: productRepo,
		deals:       deals,
		hub:         hub,
		push:        push,
		mail:        mail,
	}
}

type CreateChatRequest struct {
	ProductID string `json:"product_id"`
	// Optional; when set it must match the listing's seller.
	SellerID string `json:"seller_id,omitempty"`
}

// Create opens a chat between the current user (buyer) and the seller of the
// given listing. Repeating the call for the same listing returns the existing
// chat instead of a duplicate.
func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	buyerID := middleware.GetUserID(r.Context())
	product, err := h.productRepo.GetByID(r.Context(), req.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		logger.Errorf("chat create: load product: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}
	if req.SellerID != "" && req.SellerID != product.SellerID {
		writeError(w, http.StatusBadRequest, "seller_id does not match the listing")
		return
	}

	chat := &model.Chat{
		ID:        uuid.New().String(),
		ProductID: product.ID,
		BuyerID:   buyerID,
		SellerID:  product.SellerID,
		DealState: model.DealOpen,
		CreatedAt: time.Now().UTC(),
	}
	stored, created, err := h.chatRepo.CreateOrGet(r.Context(), chat)
	if err != nil {
		if errors.Is(err, repository.ErrSelfChat) {
			writeError(w, http.StatusBadRequest, "cannot open a chat on your own listing")
			return
		}
		logger.Errorf("chat create: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}

	if created {
		h.hub.SendToUser(stored.BuyerID, ws.OutgoingMessage{Type: ws.EventChatUpdated, Payload: stored})
		h.hub.SendToUser(stored.SellerID, ws.OutgoingMessage{Type: ws.EventChatUpdated, Payload: stored})
		h.notifySellerNewChat(stored.SellerID, product.Title)
		writeJSON(w, http.StatusCreated, stored)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// notifySellerNewChat emails the seller in the background. Failure only logs;
// chat creation never depends on SMTP.
func (h *ChatHandler) notifySellerNewChat(sellerID, productTitle string) {
	if h.mail == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		seller, err := h.userRepo.GetByID(ctx, sellerID)
		if err != nil {
			logger.Errorf("chat create: load seller for email: %v", err)
			return
		}
		if err := h.mail.SendNewChat(ctx, seller.Email, productTitle); err != nil {
			logger.Errorf("chat create: seller email: %v", err)
		}
	}()
}

// List returns the current user's chats with last-message previews, most
// recently active first.
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	previews, err := h.chatRepo.ListForUser(r.Context(), userID)
	if err != nil {
		logger.Errorf("chat list: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}
	writeJSON(w, http.StatusOK, previews)
}

// UnreadSummary recomputes the unread badge view for the current user.
func (h *ChatHandler) UnreadSummary(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	summary, err := h.chatRepo.UnreadSummary(r.Context(), userID)
	if err != nil {
		logger.Errorf("chat unread summary: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to compute unread summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Get returns a single chat the current user participates in.
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	userID := middleware.GetUserID(r.Context())
	chat, err := h.chatRepo.GetForParticipant(r.Context(), chatID, userID)
	if err != nil {
		h.writeChatError(w, "chat get", err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// ListMessages returns a chat's full message history, oldest first. Reading
// the history does not mark anything as read; that is a separate explicit
// call.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	userID := middleware.GetUserID(r.Context())
	if _, err := h.chatRepo.GetForParticipant(r.Context(), chatID, userID); err != nil {
		h.writeChatError(w, "messages list", err)
		return
	}
	messages, err := h.msgRepo.ListByChat(r.Context(), chatID)
	if err != nil {
		logger.Errorf("messages list: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

type SendMessageRequest struct {
	Message string `json:"message"`
}

// SendMessage is the HTTP path for sending a message, mirroring the push
// channel's send_message event. The response carries the stored message so
// the sender can swap out its optimistic copy.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	userID := middleware.GetUserID(r.Context())

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	chat, err := h.chatRepo.GetForParticipant(r.Context(), chatID, userID)
	if err != nil {
		h.writeChatError(w, "message send", err)
		return
	}
	if chat.DealState.Terminal() {
		writeError(w, http.StatusConflict, "deal is closed")
		return
	}

	m := &model.Message{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		SenderID:  userID,
		Body:      req.Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.msgRepo.Create(r.Context(), m); err != nil {
		logger.Errorf("message send: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	h.hub.SendToChat(chatID, ws.OutgoingMessage{Type: ws.EventNewMessage, Payload: m})
	other := chat.OtherParticipant(userID)
	h.hub.SendToUser(other, ws.OutgoingMessage{Type: ws.EventUnreadMessage, Payload: ws.UnreadPayload{
		ChatID:    m.ChatID,
		MessageID: m.ID,
		SenderID:  m.SenderID,
	}})
	if h.push != nil && !h.hub.HasConnection(other) {
		h.push.Notify(r.Context(), other, "New message", req.Message, map[string]string{"chat_id": chatID})
	}

	writeJSON(w, http.StatusCreated, m)
}

// MarkRead flips every unread incoming message in the chat to read. Only an
// explicit call moves read state; merely fetching history never does.
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	userID := middleware.GetUserID(r.Context())

	chat, err := h.chatRepo.GetForParticipant(r.Context(), chatID, userID)
	if err != nil {
		h.writeChatError(w, "mark read", err)
		return
	}
	n, err := h.msgRepo.MarkRead(r.Context(), chatID, userID)
	if err != nil {
		logger.Errorf("mark read: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to mark messages read")
		return
	}
	if n > 0 {
		// The sender's chat list shows read state; refresh it.
		h.hub.SendToUser(chat.OtherParticipant(userID), ws.OutgoingMessage{Type: ws.EventChatUpdated, Payload: chat})
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}

// CompletePayment applies the complete-payment action for the current user.
// The seller side completes the deal; the buyer side records a request.
func (h *ChatHandler) CompletePayment(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	userID := middleware.GetUserID(r.Context())

	res, err := h.deals.RequestCompletion(r.Context(), chatID, userID)
	if err != nil {
		if service.IsInvalidTransition(err) {
			writeError(w, http.StatusConflict, "deal is already closed")
			return
		}
		h.writeChatError(w, "complete payment", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Delete cancels the deal and removes the chat with its history for both
// participants.
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	userID := middleware.GetUserID(r.Context())

	if err := h.deals.Cancel(r.Context(), chatID, userID); err != nil {
		if service.IsInvalidTransition(err) {
			writeError(w, http.StatusConflict, "completed deal cannot be cancelled")
			return
		}
		h.writeChatError(w, "chat delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearAll wipes every chat. Admin maintenance endpoint.
func (h *ChatHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.chatRepo.DeleteAll(r.Context())
	if err != nil {
		logger.Errorf("chat clear all: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to clear chats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *ChatHandler) writeChatError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "chat not found")
	case errors.Is(err, repository.ErrForbidden):
		writeError(w, http.StatusForbidden, "not a participant of this chat")
	default:
		logger.Errorf("%s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
