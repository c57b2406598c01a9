package model

import "time"

// Message is a single chat message. IsRead is the only mutable field;
// messages are deleted solely as a cascade of chat deletion.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Body      string    `json:"body"`
	IsRead    bool      `json:"is_read"`
	// IsSystem marks notices generated by the deal state machine. The sender
	// is attributed to a participant for auditability but the text was not
	// typed by them.
	IsSystem  bool      `json:"is_system"`
	CreatedAt time.Time `json:"created_at"`
}
