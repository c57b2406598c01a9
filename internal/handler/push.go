package handler

import (
	"encoding/json"
	"net/http"

	"github.com/campusmarket/internal/logger"
	"github.com/campusmarket/internal/middleware"
	"github.com/campusmarket/internal/push"
	"github.com/campusmarket/internal/repository"
)

type PushHandler struct {
	subs  *repository.PushSubscriptionRepository
	vapid *push.VAPIDKeys
}

func NewPushHandler(subs *repository.PushSubscriptionRepository, vapid *push.VAPIDKeys) *PushHandler {
	return &PushHandler{subs: subs, vapid: vapid}
}

// VAPIDPublicKey hands the browser the key it needs to subscribe.
func (h *PushHandler) VAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	if h.vapid == nil || h.vapid.PublicKey == "" {
		writeError(w, http.StatusNotFound, "push notifications disabled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.vapid.PublicKey})
}

type SubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Subscribe stores a browser Web Push subscription for the current user.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}
	sub := &repository.PushSubscription{
		Endpoint: req.Endpoint,
		UserID:   middleware.GetUserID(r.Context()),
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := h.subs.Upsert(r.Context(), sub); err != nil {
		logger.Errorf("push subscribe: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to store subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Unsubscribe drops a stored subscription by endpoint.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}
	if err := h.subs.Delete(r.Context(), req.Endpoint); err != nil {
		logger.Errorf("push unsubscribe: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to remove subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
