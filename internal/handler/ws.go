package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/campusmarket/internal/logger"
	"github.com/campusmarket/internal/middleware"
	"github.com/campusmarket/internal/ws"
)

type WSHandler struct {
	hub            *ws.Hub
	allowedOrigins string
	isAdmin        func(email string) bool
}

// NewWSHandler creates the WebSocket upgrade handler. allowedOrigins matches
// the CORS setting (comma separated, or "*").
func NewWSHandler(hub *ws.Hub, allowedOrigins string, isAdmin func(string) bool) *WSHandler {
	return &WSHandler{hub: hub, allowedOrigins: strings.TrimSpace(allowedOrigins), isAdmin: isAdmin}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// ServeWS upgrades the connection and registers it with the hub. The admin
// gate here is the same config allow-list the HTTP admin routes use.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	if ident.UserID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return h.checkOrigin(r) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, ident.UserID, h.isAdmin(ident.Email))
	client.Start(ctx, cancel)
	if err := h.hub.Register(client); err != nil {
		logger.Errorf("ws register user=%s: %v", ident.UserID, err)
		client.Close()
	}
}
