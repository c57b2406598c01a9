// Package client implements the client-side view logic for the marketplace
// chat: an open chat's message timeline, the chat list, and the unread badge.
// Messages reach a client over three uncoordinated paths (bulk pull when a
// view opens, an optimistic local echo on send, and push delivery), so every
// insertion here is an idempotent merge and pull always wins over stale
// push-derived state.
package client

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campusmarket/internal/model"
)

// Entry is one row of the visible message list. Pending marks an optimistic
// local echo that has not been confirmed by the server yet.
type Entry struct {
	model.Message
	Pending bool `json:"pending"`
}

const provisionalPrefix = "local-"

// Timeline is the message list of one open chat view. All methods are safe
// for concurrent use; the push stream and UI code may call in freely.
type Timeline struct {
	mu      sync.Mutex
	userID  string
	chatID  string
	entries []Entry
	// index maps message id to its position in entries.
	index map[string]int
	// rewrites maps a provisional id to the real id the server assigned, so
	// a late push echo of a confirmed send is recognized as already present.
	rewrites map[string]string
}

func NewTimeline(userID, chatID string) *Timeline {
	return &Timeline{
		userID:   userID,
		chatID:   chatID,
		index:    make(map[string]int),
		rewrites: make(map[string]string),
	}
}

// Messages returns a snapshot of the visible list in order.
func (t *Timeline) Messages() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// SendOptimistic appends a provisional message before any network round trip
// and returns it. The caller clears the input box immediately and later pairs
// the provisional id with Confirm or Rollback.
func (t *Timeline) SendOptimistic(body string) Entry {
	e := Entry{
		Message: model.Message{
			ID:        provisionalPrefix + uuid.NewString(),
			ChatID:    t.chatID,
			SenderID:  t.userID,
			Body:      body,
			CreatedAt: time.Now().UTC(),
		},
		Pending: true,
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.index[e.ID] = len(t.entries)
	t.entries = append(t.entries, e)
	return e
}

// Confirm replaces the provisional entry in place with the stored message the
// server returned. The list position does not change, so the UI never shows
// the message jump or duplicate.
func (t *Timeline) Confirm(provisionalID string, stored model.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.index[provisionalID]
	if !ok {
		// Already confirmed via another path; still record the rewrite so a
		// push echo is suppressed.
		t.rewrites[provisionalID] = stored.ID
		return false
	}
	delete(t.index, provisionalID)
	t.rewrites[provisionalID] = stored.ID
	t.entries[pos] = Entry{Message: stored}
	t.index[stored.ID] = pos
	return true
}

// Rollback removes a provisional entry after a failed send and returns its
// body so the UI can restore the user's typed text.
func (t *Timeline) Rollback(provisionalID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.index[provisionalID]
	if !ok {
		return "", false
	}
	body := t.entries[pos].Body
	t.removeAt(pos)
	return body, true
}

// removeAt deletes entries[pos] and reindexes the tail. Caller holds mu.
func (t *Timeline) removeAt(pos int) {
	delete(t.index, t.entries[pos].ID)
	t.entries = append(t.entries[:pos], t.entries[pos+1:]...)
	for i := pos; i < len(t.entries); i++ {
		t.index[t.entries[i].ID] = i
	}
}

// ApplyPush merges a push-delivered message. A message authored by this user
// is suppressed (it would duplicate the optimistic entry) unless it is a
// system message, which is attributed to a user but never typed by one.
// Insertion is idempotent by id. Reports whether the list changed.
func (t *Timeline) ApplyPush(m model.Message) bool {
	if m.ChatID != t.chatID {
		return false
	}
	if m.SenderID == t.userID && !m.IsSystem {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.index[m.ID]; ok {
		return false
	}
	t.index[m.ID] = len(t.entries)
	t.entries = append(t.entries, Entry{Message: m})
	return true
}

// ApplyPull reconciles the timeline against an authoritative history fetch.
// The pulled list wins wholesale; unconfirmed optimistic entries are kept and
// re-appended after it, while optimistic entries whose confirmed id already
// appears in the pull are dropped as duplicates.
func (t *Timeline) ApplyPull(history []model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pending []Entry
	for _, e := range t.entries {
		if e.Pending {
			pending = append(pending, e)
		}
	}

	t.entries = t.entries[:0]
	t.index = make(map[string]int, len(history)+len(pending))
	for _, m := range history {
		if m.ChatID != t.chatID {
			continue
		}
		if _, ok := t.index[m.ID]; ok {
			continue
		}
		t.index[m.ID] = len(t.entries)
		t.entries = append(t.entries, Entry{Message: m})
	}
	for _, e := range pending {
		if _, ok := t.index[e.ID]; ok {
			continue
		}
		t.index[e.ID] = len(t.entries)
		t.entries = append(t.entries, e)
	}
}

// RealID resolves a provisional id to the id the server assigned, once the
// send was confirmed. UI code that anchors scroll position or selection on a
// message id uses this to survive the in-place swap.
func (t *Timeline) RealID(provisionalID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.rewrites[provisionalID]
	return id, ok
}

// IsProvisional reports whether id was generated locally by SendOptimistic.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}
