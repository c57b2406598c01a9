package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmarket/internal/model"
)

func msg(id, chatID, sender, body string) model.Message {
	return model.Message{ID: id, ChatID: chatID, SenderID: sender, Body: body, CreatedAt: time.Now().UTC()}
}

func TestOptimisticSendThenConfirm(t *testing.T) {
	tl := NewTimeline("me", "c1")

	e := tl.SendOptimistic("hello")
	assert.True(t, e.Pending)
	assert.True(t, IsProvisional(e.ID))
	require.Len(t, tl.Messages(), 1)

	stored := msg("real-1", "c1", "me", "hello")
	assert.True(t, tl.Confirm(e.ID, stored))

	list := tl.Messages()
	require.Len(t, list, 1)
	assert.Equal(t, "real-1", list[0].ID)
	assert.False(t, list[0].Pending)
}

func TestPushEchoOfOwnMessageSuppressed(t *testing.T) {
	tl := NewTimeline("me", "c1")
	e := tl.SendOptimistic("hello")
	tl.Confirm(e.ID, msg("real-1", "c1", "me", "hello"))

	// The push echo of the confirmed send must not duplicate the entry.
	assert.False(t, tl.ApplyPush(msg("real-1", "c1", "me", "hello")))
	assert.Len(t, tl.Messages(), 1)
}

func TestOwnSystemMessageInserted(t *testing.T) {
	tl := NewTimeline("me", "c1")

	sys := msg("sys-1", "c1", "me", "payment requested")
	sys.IsSystem = true
	assert.True(t, tl.ApplyPush(sys))

	// Plain own messages arriving via push stay suppressed.
	assert.False(t, tl.ApplyPush(msg("m2", "c1", "me", "typed")))

	list := tl.Messages()
	require.Len(t, list, 1)
	assert.Equal(t, "sys-1", list[0].ID)
}

func TestIdempotentInsertByID(t *testing.T) {
	tl := NewTimeline("me", "c1")
	other := msg("m1", "c1", "them", "hi")

	assert.True(t, tl.ApplyPush(other))
	assert.False(t, tl.ApplyPush(other))
	assert.Len(t, tl.Messages(), 1)
}

func TestPushForOtherChatIgnored(t *testing.T) {
	tl := NewTimeline("me", "c1")
	assert.False(t, tl.ApplyPush(msg("m1", "c2", "them", "hi")))
	assert.Empty(t, tl.Messages())
}

func TestPullWinsOverPushState(t *testing.T) {
	tl := NewTimeline("me", "c1")
	tl.ApplyPush(msg("m2", "c1", "them", "second"))

	// Authoritative history carries an older message the push channel missed.
	tl.ApplyPull([]model.Message{
		msg("m1", "c1", "them", "first"),
		msg("m2", "c1", "them", "second"),
	})

	list := tl.Messages()
	require.Len(t, list, 2)
	assert.Equal(t, "m1", list[0].ID)
	assert.Equal(t, "m2", list[1].ID)
}

func TestPullKeepsUnconfirmedOptimisticEntries(t *testing.T) {
	tl := NewTimeline("me", "c1")
	tl.ApplyPush(msg("m1", "c1", "them", "hi"))
	e := tl.SendOptimistic("reply")

	tl.ApplyPull([]model.Message{msg("m1", "c1", "them", "hi")})

	list := tl.Messages()
	require.Len(t, list, 2)
	assert.Equal(t, "m1", list[0].ID)
	assert.Equal(t, e.ID, list[1].ID)
	assert.True(t, list[1].Pending)
}

func TestPullDropsConfirmedDuplicate(t *testing.T) {
	tl := NewTimeline("me", "c1")
	e := tl.SendOptimistic("hello")
	tl.Confirm(e.ID, msg("real-1", "c1", "me", "hello"))

	// A pull that already includes the stored row must not duplicate it.
	tl.ApplyPull([]model.Message{msg("real-1", "c1", "me", "hello")})
	assert.Len(t, tl.Messages(), 1)
}

func TestRollbackRestoresTypedText(t *testing.T) {
	tl := NewTimeline("me", "c1")
	tl.ApplyPush(msg("m1", "c1", "them", "hi"))
	e := tl.SendOptimistic("oops")

	body, ok := tl.Rollback(e.ID)
	assert.True(t, ok)
	assert.Equal(t, "oops", body)
	assert.Len(t, tl.Messages(), 1)

	_, ok = tl.Rollback(e.ID)
	assert.False(t, ok)
}

func TestConfirmAfterPushEchoRecordsRewrite(t *testing.T) {
	tl := NewTimeline("me", "c1")
	e := tl.SendOptimistic("hello")
	stored := msg("real-1", "c1", "me", "hello")

	tl.Confirm(e.ID, stored)
	// A second confirmation for the same provisional id is a no-op.
	assert.False(t, tl.Confirm(e.ID, stored))
	assert.Len(t, tl.Messages(), 1)

	real, ok := tl.RealID(e.ID)
	assert.True(t, ok)
	assert.Equal(t, "real-1", real)
}
