package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmarket/internal/model"
)

func preview(id string, createdAt time.Time, lastAt *time.Time) model.ChatPreview {
	return model.ChatPreview{
		Chat:          model.Chat{ID: id, BuyerID: "me", SellerID: "them", DealState: model.DealOpen, CreatedAt: createdAt},
		LastMessageAt: lastAt,
	}
}

func TestChatListOrdering(t *testing.T) {
	l := NewChatList("me")
	now := time.Now().UTC()
	earlier := now.Add(-time.Hour)

	l.Reconcile([]model.ChatPreview{
		preview("idle", now, nil),
		preview("old", now.Add(-2*time.Hour), &earlier),
		preview("active", now.Add(-3*time.Hour), &now),
	}, model.UnreadSummary{})

	chats := l.Chats()
	require.Len(t, chats, 3)
	assert.Equal(t, "active", chats[0].ID)
	assert.Equal(t, "old", chats[1].ID)
	assert.Equal(t, "idle", chats[2].ID)
}

func TestApplyNewMessageUpdatesPreview(t *testing.T) {
	l := NewChatList("me")
	l.Reconcile([]model.ChatPreview{preview("c1", time.Now().UTC(), nil)}, model.UnreadSummary{})

	l.ApplyNewMessage(msg("m1", "c1", "them", "hi there"))

	chats := l.Chats()
	require.Len(t, chats, 1)
	assert.Equal(t, "hi there", chats[0].LastMessage)
	assert.True(t, chats[0].HasUnread)
}

func TestOwnMessageDoesNotMarkUnread(t *testing.T) {
	l := NewChatList("me")
	l.Reconcile([]model.ChatPreview{preview("c1", time.Now().UTC(), nil)}, model.UnreadSummary{})

	l.ApplyNewMessage(msg("m1", "c1", "me", "hi"))
	assert.False(t, l.Chats()[0].HasUnread)
}

func TestUnreadHintIsIdempotent(t *testing.T) {
	l := NewChatList("me")
	l.ApplyUnreadHint("c1")
	l.ApplyUnreadHint("c1")
	l.ApplyUnreadHint("c2")

	u := l.Unread()
	assert.Equal(t, 2, u.UnreadTotal)
	assert.ElementsMatch(t, []string{"c1", "c2"}, u.UnreadChatIDs)
}

func TestReconcileOverwritesPushHints(t *testing.T) {
	l := NewChatList("me")
	l.ApplyUnreadHint("c1")
	l.ApplyUnreadHint("c2")

	// The server recomputation is authoritative, whatever push said.
	l.Reconcile(nil, model.UnreadSummary{UnreadTotal: 1, UnreadChatIDs: []string{"c3"}})

	u := l.Unread()
	assert.Equal(t, 1, u.UnreadTotal)
	assert.Equal(t, []string{"c3"}, u.UnreadChatIDs)
}

func TestChatDeletedDropsChatAndBadge(t *testing.T) {
	l := NewChatList("me")
	l.Reconcile([]model.ChatPreview{preview("c1", time.Now().UTC(), nil)},
		model.UnreadSummary{UnreadTotal: 1, UnreadChatIDs: []string{"c1"}})

	l.ApplyChatDeleted("c1")

	assert.Empty(t, l.Chats())
	assert.Equal(t, 0, l.Unread().UnreadTotal)
}

func TestClearUnread(t *testing.T) {
	l := NewChatList("me")
	l.Reconcile([]model.ChatPreview{preview("c1", time.Now().UTC(), nil)},
		model.UnreadSummary{UnreadTotal: 1, UnreadChatIDs: []string{"c1"}})
	l.ApplyNewMessage(msg("m1", "c1", "them", "hi"))

	l.ClearUnread("c1")

	assert.False(t, l.Chats()[0].HasUnread)
	assert.Equal(t, 0, l.Unread().UnreadTotal)
}

func TestApplyChatUpdatedKeepsPreviewFields(t *testing.T) {
	l := NewChatList("me")
	now := time.Now().UTC()
	p := preview("c1", now, &now)
	p.LastMessage = "existing"
	l.Reconcile([]model.ChatPreview{p}, model.UnreadSummary{})

	updated := p.Chat
	updated.DealState = model.DealCompletionRequested
	l.ApplyChatUpdated(updated)

	chats := l.Chats()
	require.Len(t, chats, 1)
	assert.Equal(t, model.DealCompletionRequested, chats[0].DealState)
	assert.Equal(t, "existing", chats[0].LastMessage)
}
