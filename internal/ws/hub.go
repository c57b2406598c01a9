package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campusmarket/internal/logger"
	"github.com/campusmarket/internal/model"
	"github.com/campusmarket/internal/repository"
)

// ChatStore is the slice of chat persistence the hub needs to authorize
// room joins and message sends.
type ChatStore interface {
	GetForParticipant(ctx context.Context, chatID, userID string) (*model.Chat, error)
}

// MessageStore persists chat messages originated over the push channel.
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
}

// SupportStore persists help-desk messages.
type SupportStore interface {
	Create(ctx context.Context, m *model.HelpMessage) error
}

// PushNotifier delivers best-effort web push notifications to users with no
// live connection. Implementations must not block on delivery.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// Hub tracks live connections and their room memberships. Every connection
// is placed in its owner's personal room on register; admin connections are
// additionally placed in the shared admin room. Chat rooms are joined
// explicitly via the join_chat event and verified against chat membership.
// Membership is in-memory only and is dropped wholesale on disconnect.
type Hub struct {
	mu sync.RWMutex
	// byUser is the personal room: every live connection of a user.
	byUser map[string]map[*Client]struct{}
	// rooms maps chat id to the connections that joined it.
	rooms map[string]map[*Client]struct{}
	// memberships maps a client back to the chat rooms it joined, so
	// unregister can clean up without scanning every room.
	memberships map[*Client]map[string]struct{}
	// admins is the shared admin-broadcast room.
	admins map[*Client]struct{}
	total  int

	maxConns int

	chats    ChatStore
	messages MessageStore
	support  SupportStore
	push     PushNotifier
	isAdmin  func(email string) bool

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

var ErrHubFull = errors.New("ws: connection limit reached")

func NewHub(chats ChatStore, messages MessageStore, support SupportStore, push PushNotifier, isAdmin func(string) bool, maxConns int) *Hub {
	return &Hub{
		byUser:      make(map[string]map[*Client]struct{}),
		rooms:       make(map[string]map[*Client]struct{}),
		memberships: make(map[*Client]map[string]struct{}),
		admins:      make(map[*Client]struct{}),
		maxConns:    maxConns,
		chats:       chats,
		messages:    messages,
		support:     support,
		push:        push,
		isAdmin:     isAdmin,
		register:    make(chan *Client, 64),
		unregister:  make(chan *Client, 64),
		done:        make(chan struct{}),
	}
}

// Run drains the register/unregister channels until ctx is cancelled, then
// closes every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		}
	}
}

// Register places the client in its personal room (and the admin room when
// applicable). Returns ErrHubFull when the connection cap is reached.
func (h *Hub) Register(c *Client) error {
	h.mu.RLock()
	full := h.maxConns > 0 && h.total >= h.maxConns
	h.mu.RUnlock()
	if full {
		return ErrHubFull
	}
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return errors.New("ws: hub stopped")
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byUser[c.userID]; !ok {
		h.byUser[c.userID] = make(map[*Client]struct{})
	}
	h.byUser[c.userID][c] = struct{}{}
	h.memberships[c] = make(map[string]struct{})
	if c.isAdmin {
		h.admins[c] = struct{}{}
	}
	h.total++
	logger.Infof("ws connected user=%s total=%d", c.userID, h.total)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if conns, ok := h.byUser[c.userID]; ok {
		if _, present := conns[c]; present {
			delete(conns, c)
			h.total--
			if len(conns) == 0 {
				delete(h.byUser, c.userID)
			}
		}
	}
	for chatID := range h.memberships[c] {
		if room, ok := h.rooms[chatID]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, chatID)
			}
		}
	}
	delete(h.memberships, c)
	delete(h.admins, c)
	total := h.total
	h.mu.Unlock()

	c.Close()
	logger.Infof("ws disconnected user=%s total=%d", c.userID, total)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, h.total)
	for _, conns := range h.byUser {
		for c := range conns {
			clients = append(clients, c)
		}
	}
	h.byUser = make(map[string]map[*Client]struct{})
	h.rooms = make(map[string]map[*Client]struct{})
	h.memberships = make(map[*Client]map[string]struct{})
	h.admins = make(map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}

// joinRoom adds an already-registered client to a chat room.
func (h *Hub) joinRoom(c *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.memberships[c]; !ok {
		// Client raced unregister; nothing to join.
		return
	}
	if _, ok := h.rooms[chatID]; !ok {
		h.rooms[chatID] = make(map[*Client]struct{})
	}
	h.rooms[chatID][c] = struct{}{}
	h.memberships[c][chatID] = struct{}{}
}

// HandleMessage dispatches a single incoming event from a client connection.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventJoinChat:
		h.handleJoinChat(ctx, c, msg)
	case EventSendMessage:
		h.handleSendMessage(ctx, c, msg)
	case EventSendHelpMessage:
		h.handleHelpMessage(ctx, c, msg)
	case EventSendAdminResponse:
		h.handleAdminResponse(ctx, c, msg)
	default:
		h.sendError(c, fmt.Sprintf("unknown event type %q", msg.Type))
	}
}

func (h *Hub) handleJoinChat(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.ChatID == "" {
		h.sendError(c, "join_chat: chat_id required")
		return
	}
	if _, err := h.chats.GetForParticipant(ctx, msg.ChatID, c.userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrForbidden) {
			h.sendError(c, "join_chat: chat not available")
			return
		}
		logger.Errorf("ws join_chat user=%s chat=%s: %v", c.userID, msg.ChatID, err)
		h.sendError(c, "join_chat: internal error")
		return
	}
	h.joinRoom(c, msg.ChatID)
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.ChatID == "" || msg.Message == "" {
		h.sendError(c, "send_message: chat_id and message required")
		return
	}
	chat, err := h.chats.GetForParticipant(ctx, msg.ChatID, c.userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrForbidden) {
			h.sendError(c, "send_message: chat not available")
			return
		}
		logger.Errorf("ws send_message user=%s chat=%s: %v", c.userID, msg.ChatID, err)
		h.sendError(c, "send_message: internal error")
		return
	}
	if chat.DealState.Terminal() {
		h.sendError(c, "send_message: deal is closed")
		return
	}

	m := &model.Message{
		ID:        uuid.NewString(),
		ChatID:    msg.ChatID,
		SenderID:  c.userID,
		Body:      msg.Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.messages.Create(ctx, m); err != nil {
		logger.Errorf("ws persist message user=%s chat=%s: %v", c.userID, msg.ChatID, err)
		h.sendError(c, "send_message: internal error")
		return
	}

	h.SendToChat(msg.ChatID, OutgoingMessage{Type: EventNewMessage, Payload: m})

	other := chat.OtherParticipant(c.userID)
	h.SendToUser(other, OutgoingMessage{Type: EventUnreadMessage, Payload: UnreadPayload{
		ChatID:    m.ChatID,
		MessageID: m.ID,
		SenderID:  m.SenderID,
	}})

	if h.push != nil && !h.HasConnection(other) {
		h.push.Notify(ctx, other, "New message", msg.Message, map[string]string{"chat_id": msg.ChatID})
	}
}

func (h *Hub) handleHelpMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.Message == "" {
		h.sendError(c, "send_help_message: message required")
		return
	}
	m := &model.HelpMessage{
		ID:        uuid.NewString(),
		UserID:    c.userID,
		Body:      msg.Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.support.Create(ctx, m); err != nil {
		logger.Errorf("ws persist help message user=%s: %v", c.userID, err)
		h.sendError(c, "send_help_message: internal error")
		return
	}
	out := OutgoingMessage{Type: EventNewHelpMessage, Payload: m}
	h.SendToAdmins(out)
	h.SendToUser(c.userID, out)
}

func (h *Hub) handleAdminResponse(ctx context.Context, c *Client, msg IncomingMessage) {
	if !c.isAdmin {
		h.sendError(c, "send_admin_response: not allowed")
		return
	}
	if msg.ToUserID == "" || msg.Message == "" {
		h.sendError(c, "send_admin_response: to_user_id and message required")
		return
	}
	m := &model.HelpMessage{
		ID:          uuid.NewString(),
		UserID:      msg.ToUserID,
		Body:        msg.Message,
		IsFromAdmin: true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.support.Create(ctx, m); err != nil {
		logger.Errorf("ws persist admin response admin=%s target=%s: %v", c.userID, msg.ToUserID, err)
		h.sendError(c, "send_admin_response: internal error")
		return
	}
	out := OutgoingMessage{Type: EventAdminResponse, Payload: m}
	h.SendToUser(msg.ToUserID, out)
	h.SendToAdmins(out)
}

// SendToUser delivers a message to every live connection of a user.
// Fire-and-forget: no connection means no delivery.
func (h *Hub) SendToUser(userID string, msg OutgoingMessage) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.byUser[userID]))
	for c := range h.byUser[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.sendToClient(c, msg)
	}
}

// SendToChat delivers a message to every connection that joined the chat room.
func (h *Hub) SendToChat(chatID string, msg OutgoingMessage) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[chatID]))
	for c := range h.rooms[chatID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.sendToClient(c, msg)
	}
}

// SendToAdmins delivers a message to every connection in the admin room.
func (h *Hub) SendToAdmins(msg OutgoingMessage) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.admins))
	for c := range h.admins {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.sendToClient(c, msg)
	}
}

// HasConnection reports whether the user has at least one live connection.
func (h *Hub) HasConnection(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

// sendToClient enqueues without blocking. A full send buffer means the
// client cannot keep up and the connection is dropped.
func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		logger.Errorf("ws send buffer full, dropping user=%s", c.userID)
		go h.Unregister(c)
	}
}

func (h *Hub) sendError(c *Client, text string) {
	h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: map[string]string{"error": text}})
}
