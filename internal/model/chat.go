package model

import "time"

// Chat is a negotiation session scoped to exactly one buyer, one seller and
// one product listing. Exactly one chat exists per (product, buyer, seller).
type Chat struct {
	ID                       string    `json:"id"`
	ProductID                string    `json:"product_id"`
	BuyerID                  string    `json:"buyer_id"`
	SellerID                 string    `json:"seller_id"`
	DealState                DealState `json:"deal_state"`
	BuyerRequestedCompletion bool      `json:"buyer_requested_completion"`
	CreatedAt                time.Time `json:"created_at"`
}

// IsParticipant reports whether userID is the chat's buyer or seller.
func (c *Chat) IsParticipant(userID string) bool {
	return userID == c.BuyerID || userID == c.SellerID
}

// OtherParticipant returns the counterpart of userID, or "" if userID is not
// a participant.
func (c *Chat) OtherParticipant(userID string) string {
	switch userID {
	case c.BuyerID:
		return c.SellerID
	case c.SellerID:
		return c.BuyerID
	}
	return ""
}

// ChatPreview is a chat annotated for the chat-list view: last message
// preview, last activity and whether the other side has unread messages for
// the requesting user.
type ChatPreview struct {
	Chat
	LastMessage   string     `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	HasUnread     bool       `json:"has_unread"`
}

// UnreadSummary is the derived notification view consumed by UI surfaces.
// It is recomputed from chat and message rows on every call; there is no
// server-side counter to drift.
type UnreadSummary struct {
	UnreadTotal   int      `json:"unread_total"`
	UnreadChatIDs []string `json:"unread_chat_ids"`
}
