package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/campusmarket/internal/logger"
	"github.com/campusmarket/internal/middleware"
	"github.com/campusmarket/internal/model"
	"github.com/campusmarket/internal/repository"
	"github.com/campusmarket/internal/ws"
)

type SupportHandler struct {
	supportRepo *repository.SupportRepository
	hub         *ws.Hub
}

func NewSupportHandler(supportRepo *repository.SupportRepository, hub *ws.Hub) *SupportHandler {
	return &SupportHandler{supportRepo: supportRepo, hub: hub}
}

type HelpMessageRequest struct {
	Body string `json:"body"`
}

// Send stores a help-desk message from the current user and pushes it to
// every connected admin.
func (h *SupportHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req HelpMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Body == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}

	m := &model.HelpMessage{
		ID:        uuid.New().String(),
		UserID:    middleware.GetUserID(r.Context()),
		Body:      req.Body,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.supportRepo.Create(r.Context(), m); err != nil {
		logger.Errorf("help message send: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to send help message")
		return
	}

	out := ws.OutgoingMessage{Type: ws.EventNewHelpMessage, Payload: m}
	h.hub.SendToAdmins(out)
	h.hub.SendToUser(m.UserID, out)
	writeJSON(w, http.StatusCreated, m)
}

// Thread returns the current user's own support thread, oldest first.
func (h *SupportHandler) Thread(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	msgs, err := h.supportRepo.ListForUser(r.Context(), userID)
	if err != nil {
		logger.Errorf("help thread: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load help thread")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// Threads returns every support thread grouped by user. Admin only.
func (h *SupportHandler) Threads(w http.ResponseWriter, r *http.Request) {
	threads, err := h.supportRepo.ListThreads(r.Context())
	if err != nil {
		logger.Errorf("help threads: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load help threads")
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

type AdminResponseRequest struct {
	UserID string `json:"user_id"`
	Body   string `json:"body"`
}

// Respond stores an admin reply into a user's support thread and pushes it to
// the user and the other admins. Admin only.
func (h *SupportHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req AdminResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "user_id and body are required")
		return
	}

	m := &model.HelpMessage{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		Body:        req.Body,
		IsFromAdmin: true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.supportRepo.Create(r.Context(), m); err != nil {
		logger.Errorf("admin respond: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to send response")
		return
	}

	out := ws.OutgoingMessage{Type: ws.EventAdminResponse, Payload: m}
	h.hub.SendToUser(req.UserID, out)
	h.hub.SendToAdmins(out)
	writeJSON(w, http.StatusCreated, m)
}
