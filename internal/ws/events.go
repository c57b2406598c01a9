package ws

type EventType string

// Client -> server.
const (
	EventJoinChat          EventType = "join_chat"
	EventSendMessage       EventType = "send_message"
	EventSendHelpMessage   EventType = "send_help_message"
	EventSendAdminResponse EventType = "send_admin_response"
)

// Server -> client.
const (
	EventNewMessage     EventType = "new_message"
	EventUnreadMessage  EventType = "unread_message"
	EventChatDeleted    EventType = "chat_deleted"
	EventChatUpdated    EventType = "chat_updated"
	EventDealCompleted  EventType = "deal_completed"
	EventNewHelpMessage EventType = "new_help_message"
	EventAdminResponse  EventType = "admin_response"
	EventError          EventType = "error"
)

// IncomingMessage is what the client sends over the push channel.
type IncomingMessage struct {
	Type    EventType `json:"type"`
	ChatID  string    `json:"chat_id,omitempty"`
	Message string    `json:"message,omitempty"`

	// For admin replies on the support channel.
	ToUserID string `json:"to_user_id,omitempty"`
}

// OutgoingMessage is what the server sends over the push channel.
// Payload uses typed structs to avoid map[string]any allocations.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// UnreadPayload is delivered to a participant's personal room when the other
// side sends a message; it carries enough for a badge bump, not the body.
type UnreadPayload struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	SenderID  string `json:"sender_id"`
}

// ChatDeletedPayload is delivered when a chat is cancelled or swept.
type ChatDeletedPayload struct {
	ChatID string `json:"chat_id"`
}

// DealCompletedPayload is delivered when the seller confirms completion.
type DealCompletedPayload struct {
	ChatID           string `json:"chat_id"`
	PaymentCompleted bool   `json:"payment_completed"`
}
