package client

import (
	"sort"
	"sync"
	"time"

	"github.com/campusmarket/internal/model"
)

// ChatList is the chat overview the user sees outside any open chat. Push
// events update previews and ordering opportunistically, but a periodic full
// re-pull is authoritative: whatever the server returns replaces whatever
// push events said.
type ChatList struct {
	mu     sync.Mutex
	userID string
	chats  map[string]model.ChatPreview
	unread model.UnreadSummary
}

func NewChatList(userID string) *ChatList {
	return &ChatList{userID: userID, chats: make(map[string]model.ChatPreview)}
}

// Chats returns the previews ordered by last activity, newest first. Chats
// with no messages sort after chats with messages, newest created first.
func (l *ChatList) Chats() []model.ChatPreview {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.ChatPreview, 0, len(l.chats))
	for _, c := range l.chats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastMessageAt, out[j].LastMessageAt
		switch {
		case a != nil && b != nil:
			return a.After(*b)
		case a != nil:
			return true
		case b != nil:
			return false
		default:
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
	})
	return out
}

// Unread returns the current badge view.
func (l *ChatList) Unread() model.UnreadSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.unread
	s.UnreadChatIDs = append([]string(nil), s.UnreadChatIDs...)
	return s
}

// Reconcile replaces the list with a full pull result. Pull wins over any
// push-derived state.
func (l *ChatList) Reconcile(previews []model.ChatPreview, unread model.UnreadSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chats = make(map[string]model.ChatPreview, len(previews))
	for _, p := range previews {
		l.chats[p.ID] = p
	}
	l.unread = unread
}

// ApplyChatUpdated upserts a chat from a chat_updated push event, keeping the
// existing preview fields the event does not carry.
func (l *ChatList) ApplyChatUpdated(chat model.Chat) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.chats[chat.ID]
	if !ok {
		p = model.ChatPreview{}
	}
	p.Chat = chat
	l.chats[chat.ID] = p
}

// ApplyNewMessage refreshes a chat's preview from a message observed on the
// push channel.
func (l *ChatList) ApplyNewMessage(m model.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.chats[m.ChatID]
	if !ok {
		return
	}
	at := m.CreatedAt
	p.LastMessage = m.Body
	p.LastMessageAt = &at
	if m.SenderID != l.userID {
		p.HasUnread = true
	}
	l.chats[m.ChatID] = p
}

// ApplyUnreadHint bumps the badge from an unread_message push event. The
// hint is optimistic; the next Reconcile overwrites it with the recomputed
// server view.
func (l *ChatList) ApplyUnreadHint(chatID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range l.unread.UnreadChatIDs {
		if id == chatID {
			return
		}
	}
	l.unread.UnreadChatIDs = append(l.unread.UnreadChatIDs, chatID)
	l.unread.UnreadTotal = len(l.unread.UnreadChatIDs)
}

// ApplyChatDeleted drops a chat after a chat_deleted push event.
func (l *ChatList) ApplyChatDeleted(chatID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.chats, chatID)
	kept := l.unread.UnreadChatIDs[:0]
	for _, id := range l.unread.UnreadChatIDs {
		if id != chatID {
			kept = append(kept, id)
		}
	}
	l.unread.UnreadChatIDs = kept
	l.unread.UnreadTotal = len(kept)
}

// ClearUnread removes a chat from the badge after an explicit mark-read.
func (l *ChatList) ClearUnread(chatID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.chats[chatID]; ok {
		p.HasUnread = false
		l.chats[chatID] = p
	}
	kept := l.unread.UnreadChatIDs[:0]
	for _, id := range l.unread.UnreadChatIDs {
		if id != chatID {
			kept = append(kept, id)
		}
	}
	l.unread.UnreadChatIDs = kept
	l.unread.UnreadTotal = len(kept)
}

// RefreshInterval is how often a list view should fall back to a full
// re-pull even when the push channel looks healthy.
const RefreshInterval = 30 * time.Second
