package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmarket/internal/model"
)

func seedUser(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	users := NewUserRepository(testPool)
	err := users.Create(ctx, &model.User{
		ID: id, Email: id + "@campus.test", Username: id, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func seedProduct(t *testing.T, id, sellerID string) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO products (id, seller_id, title) VALUES ($1, $2, $3)`,
		id, sellerID, "listing "+id)
	require.NoError(t, err)
}

func newTestChat(productID, buyerID, sellerID string) *model.Chat {
	return &model.Chat{
		ID:        uuid.NewString(),
		ProductID: productID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		DealState: model.DealOpen,
		CreatedAt: time.Now().UTC(),
	}
}

func seedChat(t *testing.T, chats *ChatRepository, productID, buyerID, sellerID string) *model.Chat {
	t.Helper()
	stored, created, err := chats.CreateOrGet(context.Background(), newTestChat(productID, buyerID, sellerID))
	require.NoError(t, err)
	require.True(t, created)
	return stored
}

func seedMessage(t *testing.T, msgs *MessageRepository, chatID, senderID, body string) *model.Message {
	t.Helper()
	m := &model.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, msgs.Create(context.Background(), m))
	return m
}

func TestCreateOrGetIsIdempotent(t *testing.T) {
	resetTables(t)
	seedUser(t, "buyer")
	seedUser(t, "seller")
	seedProduct(t, "p1", "seller")
	chats := NewChatRepository(testPool)
	ctx := context.Background()

	first, created, err := chats.CreateOrGet(ctx, newTestChat("p1", "buyer", "seller"))
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := chats.CreateOrGet(ctx, newTestChat("p1", "buyer", "seller"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var n int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT COUNT(*) FROM chats`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSelfChatRejected(t *testing.T) {
	resetTables(t)
	seedUser(t, "seller")
	seedProduct(t, "p1", "seller")
	chats := NewChatRepository(testPool)
	ctx := context.Background()

	_, _, err := chats.CreateOrGet(ctx, newTestChat("p1", "seller", "seller"))
	assert.ErrorIs(t, err, ErrSelfChat)

	var n int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT COUNT(*) FROM chats`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestGetForParticipant(t *testing.T) {
	resetTables(t)
	seedUser(t, "buyer")
	seedUser(t, "seller")
	seedUser(t, "stranger")
	seedProduct(t, "p1", "seller")
	chats := NewChatRepository(testPool)
	chat := seedChat(t, chats, "p1", "buyer", "seller")
	ctx := context.Background()

	for _, id := range []string{"buyer", "seller"} {
		got, err := chats.GetForParticipant(ctx, chat.ID, id)
		require.NoError(t, err)
		assert.Equal(t, chat.ID, got.ID)
	}

	_, err := chats.GetForParticipant(ctx, chat.ID, "stranger")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = chats.GetForParticipant(ctx, uuid.NewString(), "buyer")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListForUserOrdersByActivity(t *testing.T) {
	resetTables(t)
	seedUser(t, "buyer")
	seedUser(t, "seller")
	seedProduct(t, "p1", "seller")
	seedProduct(t, "p2", "seller")
	chats := NewChatRepository(testPool)
	msgs := NewMessageRepository(testPool)

	older := seedChat(t, chats, "p1", "buyer", "seller")
	newer := seedChat(t, chats, "p2", "buyer", "seller")
	seedMessage(t, msgs, older.ID, "seller", "hello")
	time.Sleep(10 * time.Millisecond)
	seedMessage(t, msgs, newer.ID, "seller", "newer activity")

	previews, err := chats.ListForUser(context.Background(), "buyer")
	require.NoError(t, err)
	require.Len(t, previews, 2)
	assert.Equal(t, newer.ID, previews[0].ID)
	assert.Equal(t, "newer activity", previews[0].LastMessage)
	assert.True(t, previews[0].HasUnread)
	assert.Equal(t, older.ID, previews[1].ID)

	// The seller authored everything, so nothing is unread on their side.
	sellerPreviews, err := chats.ListForUser(context.Background(), "seller")
	require.NoError(t, err)
	for _, p := range sellerPreviews {
		assert.False(t, p.HasUnread)
	}
}

func TestUnreadSummaryMatchesRawData(t *testing.T) {
	resetTables(t)
	seedUser(t, "buyer")
	seedUser(t, "seller")
	seedProduct(t, "p1", "seller")
	seedProduct(t, "p2", "seller")
	seedProduct(t, "p3", "seller")
	chats := NewChatRepository(testPool)
	msgs := NewMessageRepository(testPool)
	ctx := context.Background()

	// c1: latest message from seller, unread for buyer.
	c1 := seedChat(t, chats, "p1", "buyer", "seller")
	seedMessage(t, msgs, c1.ID, "seller", "unread")

	// c2: latest message authored by buyer; never counts for buyer.
	c2 := seedChat(t, chats, "p2", "buyer", "seller")
	seedMessage(t, msgs, c2.ID, "seller", "first")
	time.Sleep(10 * time.Millisecond)
	seedMessage(t, msgs, c2.ID, "buyer", "reply")

	// c3: no messages at all.
	seedChat(t, chats, "p3", "buyer", "seller")

	summary, err := chats.UnreadSummary(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.UnreadTotal)
	assert.Equal(t, []string{c1.ID}, summary.UnreadChatIDs)

	// Marking c1 read clears the aggregate.
	_, err = msgs.MarkRead(ctx, c1.ID, "buyer")
	require.NoError(t, err)
	summary, err = chats.UnreadSummary(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.UnreadTotal)
}

func TestDeleteCascadesMessages(t *testing.T) {
	resetTables(t)
	seedUser(t, "buyer")
	seedUser(t, "seller")
	seedProduct(t, "p1", "seller")
	chats := NewChatRepository(testPool)
	msgs := NewMessageRepository(testPool)
	ctx := context.Background()

	chat := seedChat(t, chats, "p1", "buyer", "seller")
	for i := 0; i < 5; i++ {
		seedMessage(t, msgs, chat.ID, "buyer", "msg")
	}

	require.NoError(t, chats.Delete(ctx, chat.ID))

	_, err := chats.GetForParticipant(ctx, chat.ID, "buyer")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = chats.GetForParticipant(ctx, chat.ID, "seller")
	assert.ErrorIs(t, err, ErrNotFound)

	var n int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE chat_id = $1`, chat.ID).Scan(&n))
	assert.Equal(t, 0, n)

	assert.ErrorIs(t, chats.Delete(ctx, chat.ID), ErrNotFound)
}

func TestUpdateDealState(t *testing.T) {
	resetTables(t)
	seedUser(t, "buyer")
	seedUser(t, "seller")
	seedProduct(t, "p1", "seller")
	chats := NewChatRepository(testPool)
	ctx := context.Background()

	chat := seedChat(t, chats, "p1", "buyer", "seller")
	require.NoError(t, chats.UpdateDealState(ctx, chat.ID, model.DealCompletionRequested, true))

	got, err := chats.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DealCompletionRequested, got.DealState)
	assert.True(t, got.BuyerRequestedCompletion)

	assert.ErrorIs(t, chats.UpdateDealState(ctx, uuid.NewString(), model.DealCompleted, true), ErrNotFound)
}

func TestDeleteInactiveBefore(t *testing.T) {
	resetTables(t)
	seedUser(t, "buyer")
	seedUser(t, "seller")
	seedProduct(t, "p1", "seller")
	seedProduct(t, "p2", "seller")
	chats := NewChatRepository(testPool)
	msgs := NewMessageRepository(testPool)
	ctx := context.Background()

	stale := seedChat(t, chats, "p1", "buyer", "seller")
	fresh := seedChat(t, chats, "p2", "buyer", "seller")
	seedMessage(t, msgs, fresh.ID, "buyer", "recent")

	// Everything created in this test postdates the cutoff except nothing;
	// move the stale chat's creation into the past directly.
	_, err := testPool.Exec(ctx, `UPDATE chats SET created_at = now() - interval '60 days' WHERE id = $1`, stale.ID)
	require.NoError(t, err)

	n, err := chats.DeleteInactiveBefore(ctx, time.Now().UTC().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = chats.GetByID(ctx, stale.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = chats.GetByID(ctx, fresh.ID)
	assert.NoError(t, err)
}
