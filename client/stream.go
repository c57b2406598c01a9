package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/campusmarket/internal/model"
	"github.com/campusmarket/internal/ws"
)

// Event is one decoded push-channel message with its payload left raw for
// the handler to decode by type.
type Event struct {
	Type    ws.EventType
	Payload json.RawMessage
}

// Handler receives decoded push events. Unset callbacks are skipped.
type Handler struct {
	OnNewMessage     func(model.Message)
	OnUnread         func(ws.UnreadPayload)
	OnChatUpdated    func(model.Chat)
	OnChatDeleted    func(ws.ChatDeletedPayload)
	OnDealCompleted  func(ws.DealCompletedPayload)
	OnNewHelpMessage func(model.HelpMessage)
	OnAdminResponse  func(model.HelpMessage)
	OnError          func(string)
}

// Stream is one live push-channel connection. Room membership does not
// survive a disconnect, so after Dial the caller re-emits JoinChat for every
// chat view still open.
type Stream struct {
	conn *websocket.Conn
}

// Dial connects the push channel, authenticating with the same bearer token
// the request/response calls use.
func Dial(ctx context.Context, baseURL, token string) (*Stream, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("stream dial: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path += "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("stream dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("stream dial: %w", err)
	}
	return &Stream{conn: conn}, nil
}

// Close tears the connection down. The server drops every room membership.
func (s *Stream) Close() error {
	return s.conn.Close()
}

// JoinChat subscribes this connection to a chat room. Must be re-sent after
// every reconnect.
func (s *Stream) JoinChat(chatID string) error {
	return s.writeJSON(map[string]string{"type": string(ws.EventJoinChat), "chat_id": chatID})
}

// SendMessage sends a chat message over the push channel instead of HTTP.
// The confirmation arrives as a new_message event carrying the real id.
func (s *Stream) SendMessage(chatID, body string) error {
	return s.writeJSON(map[string]string{"type": string(ws.EventSendMessage), "chat_id": chatID, "message": body})
}

// SendHelpMessage sends into the support thread over the push channel.
func (s *Stream) SendHelpMessage(body string) error {
	return s.writeJSON(map[string]string{"type": string(ws.EventSendHelpMessage), "message": body})
}

// SendAdminResponse sends an admin reply to a user's support thread. The
// server rejects it unless the connection's identity is an admin.
func (s *Stream) SendAdminResponse(toUserID, body string) error {
	return s.writeJSON(map[string]string{"type": string(ws.EventSendAdminResponse), "to_user_id": toUserID, "message": body})
}

func (s *Stream) writeJSON(v any) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

// Listen reads events until the connection drops or ctx is cancelled and
// dispatches them to the handler. A read error ends the loop; the caller
// decides whether to redial and must then re-pull state, since events during
// the gap are gone.
func (s *Stream) Listen(ctx context.Context, h Handler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-done:
		}
	}()

	for {
		var raw struct {
			Type    ws.EventType    `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := s.conn.ReadJSON(&raw); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		dispatch(h, Event{Type: raw.Type, Payload: raw.Payload})
	}
}

func dispatch(h Handler, e Event) {
	switch e.Type {
	case ws.EventNewMessage:
		if h.OnNewMessage != nil {
			var m model.Message
			if json.Unmarshal(e.Payload, &m) == nil {
				h.OnNewMessage(m)
			}
		}
	case ws.EventUnreadMessage:
		if h.OnUnread != nil {
			var p ws.UnreadPayload
			if json.Unmarshal(e.Payload, &p) == nil {
				h.OnUnread(p)
			}
		}
	case ws.EventChatUpdated:
		if h.OnChatUpdated != nil {
			var c model.Chat
			if json.Unmarshal(e.Payload, &c) == nil {
				h.OnChatUpdated(c)
			}
		}
	case ws.EventChatDeleted:
		if h.OnChatDeleted != nil {
			var p ws.ChatDeletedPayload
			if json.Unmarshal(e.Payload, &p) == nil {
				h.OnChatDeleted(p)
			}
		}
	case ws.EventDealCompleted:
		if h.OnDealCompleted != nil {
			var p ws.DealCompletedPayload
			if json.Unmarshal(e.Payload, &p) == nil {
				h.OnDealCompleted(p)
			}
		}
	case ws.EventNewHelpMessage:
		if h.OnNewHelpMessage != nil {
			var m model.HelpMessage
			if json.Unmarshal(e.Payload, &m) == nil {
				h.OnNewHelpMessage(m)
			}
		}
	case ws.EventAdminResponse:
		if h.OnAdminResponse != nil {
			var m model.HelpMessage
			if json.Unmarshal(e.Payload, &m) == nil {
				h.OnAdminResponse(m)
			}
		}
	case ws.EventError:
		if h.OnError != nil {
			var p struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(e.Payload, &p) == nil {
				h.OnError(p.Error)
			}
		}
	}
}
