package model

import "time"

// User is the slice of the account store this subsystem consumes: enough to
// resolve identities, notify sellers by email and render counterparts.
// Account lifecycle (registration, verification) lives outside this service.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is a resolved bearer credential.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}
