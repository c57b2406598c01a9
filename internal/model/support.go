package model

import "time"

// HelpMessage is one entry in a user's support conversation with the
// administrators. A regular user sees only their own thread; admins see all
// threads grouped by user.
type HelpMessage struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Body        string    `json:"body"`
	IsFromAdmin bool      `json:"is_from_admin"`
	CreatedAt   time.Time `json:"created_at"`
}

// HelpThread groups a user's support messages for the admin view.
type HelpThread struct {
	UserID   string        `json:"user_id"`
	Email    string        `json:"email,omitempty"`
	Messages []HelpMessage `json:"messages"`
}
