package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusmarket/internal/logger"
	"github.com/campusmarket/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrSelfChat  = errors.New("buyer and seller must differ")
)

type ChatRepository struct {
	pool *pgxpool.Pool
}

func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

const chatColumns = `id, product_id, buyer_id, seller_id, deal_state, buyer_requested_completion, created_at`

func scanChat(row pgx.Row) (*model.Chat, error) {
	c := &model.Chat{}
	err := row.Scan(&c.ID, &c.ProductID, &c.BuyerID, &c.SellerID, &c.DealState, &c.BuyerRequestedCompletion, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateOrGet inserts the chat, or returns the existing one for the same
// (product, buyer, seller) triple. The second return value reports whether a
// new row was created.
func (r *ChatRepository) CreateOrGet(ctx context.Context, c *model.Chat) (*model.Chat, bool, error) {
	defer logger.DeferLogDuration("chat.CreateOrGet", time.Now())()
	if c.BuyerID == c.SellerID {
		return nil, false, ErrSelfChat
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO chats (`+chatColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (product_id, buyer_id, seller_id) DO NOTHING
		 RETURNING `+chatColumns,
		c.ID, c.ProductID, c.BuyerID, c.SellerID, c.DealState, c.BuyerRequestedCompletion, c.CreatedAt,
	)
	created, err := scanChat(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("chatRepo.CreateOrGet insert: %w", err)
	}
	existing, err := r.GetByTriple(ctx, c.ProductID, c.BuyerID, c.SellerID)
	if err != nil {
		return nil, false, fmt.Errorf("chatRepo.CreateOrGet get existing: %w", err)
	}
	return existing, false, nil
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.GetByID", time.Now())()
	c, err := scanChat(r.pool.QueryRow(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE id = $1`, id))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetByID: %w", err)
	}
	return c, nil
}

func (r *ChatRepository) GetByTriple(ctx context.Context, productID, buyerID, sellerID string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.GetByTriple", time.Now())()
	c, err := scanChat(r.pool.QueryRow(ctx,
		`SELECT `+chatColumns+` FROM chats
		 WHERE product_id = $1 AND buyer_id = $2 AND seller_id = $3`,
		productID, buyerID, sellerID))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetByTriple: %w", err)
	}
	return c, nil
}

// GetForParticipant loads the chat and verifies the requester is buyer or
// seller. Returns ErrForbidden for a valid chat the requester is not in.
func (r *ChatRepository) GetForParticipant(ctx context.Context, chatID, requesterID string) (*model.Chat, error) {
	c, err := r.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !c.IsParticipant(requesterID) {
		return nil, ErrForbidden
	}
	return c, nil
}

// ListForUser returns all chats where the user is buyer or seller, each with
// a last-message preview and an unread flag. Most recently active first;
// chats with no messages sort after chats with messages, newest created
// first.
func (r *ChatRepository) ListForUser(ctx context.Context, userID string) ([]model.ChatPreview, error) {
	defer logger.DeferLogDuration("chat.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.product_id, c.buyer_id, c.seller_id, c.deal_state, c.buyer_requested_completion, c.created_at,
		        COALESCE(lm.body, ''), lm.created_at,
		        EXISTS (SELECT 1 FROM messages u
		                WHERE u.chat_id = c.id AND u.sender_id <> $1 AND u.is_read = false)
		 FROM chats c
		 LEFT JOIN LATERAL (
		     SELECT body, created_at FROM messages m
		     WHERE m.chat_id = c.id
		     ORDER BY m.created_at DESC, m.id DESC
		     LIMIT 1
		 ) lm ON true
		 WHERE c.buyer_id = $1 OR c.seller_id = $1
		 ORDER BY lm.created_at DESC NULLS LAST, c.created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	previews := make([]model.ChatPreview, 0, 16)
	for rows.Next() {
		var p model.ChatPreview
		if err := rows.Scan(&p.ID, &p.ProductID, &p.BuyerID, &p.SellerID, &p.DealState, &p.BuyerRequestedCompletion, &p.CreatedAt,
			&p.LastMessage, &p.LastMessageAt, &p.HasUnread); err != nil {
			return nil, fmt.Errorf("chatRepo.ListForUser scan: %w", err)
		}
		previews = append(previews, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.ListForUser rows: %w", err)
	}
	return previews, nil
}

// UnreadSummary recomputes the derived unread view from raw rows: a chat
// counts as unread when its most recent message was sent by the other
// participant and has not been read yet.
func (r *ChatRepository) UnreadSummary(ctx context.Context, userID string) (*model.UnreadSummary, error) {
	defer logger.DeferLogDuration("chat.UnreadSummary", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT c.id
		 FROM chats c
		 JOIN LATERAL (
		     SELECT sender_id, is_read FROM messages m
		     WHERE m.chat_id = c.id
		     ORDER BY m.created_at DESC, m.id DESC
		     LIMIT 1
		 ) lm ON true
		 WHERE (c.buyer_id = $1 OR c.seller_id = $1)
		   AND lm.sender_id <> $1 AND lm.is_read = false`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.UnreadSummary query: %w", err)
	}
	defer rows.Close()

	s := &model.UnreadSummary{UnreadChatIDs: make([]string, 0, 8)}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("chatRepo.UnreadSummary scan: %w", err)
		}
		s.UnreadChatIDs = append(s.UnreadChatIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.UnreadSummary rows: %w", err)
	}
	s.UnreadTotal = len(s.UnreadChatIDs)
	return s, nil
}

// UpdateDealState persists a state-machine transition.
func (r *ChatRepository) UpdateDealState(ctx context.Context, chatID string, state model.DealState, buyerRequested bool) error {
	defer logger.DeferLogDuration("chat.UpdateDealState", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE chats SET deal_state = $1, buyer_requested_completion = $2 WHERE id = $3`,
		state, buyerRequested, chatID,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.UpdateDealState: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the chat; messages cascade via the foreign key.
func (r *ChatRepository) Delete(ctx context.Context, chatID string) error {
	defer logger.DeferLogDuration("chat.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("chatRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll wipes every chat (admin maintenance).
func (r *ChatRepository) DeleteAll(ctx context.Context) (int64, error) {
	defer logger.DeferLogDuration("chat.DeleteAll", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM chats`)
	if err != nil {
		return 0, fmt.Errorf("chatRepo.DeleteAll: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteInactiveBefore removes chats whose last activity (last message, or
// creation when empty) predates cutoff. Used by the background sweep.
func (r *ChatRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	defer logger.DeferLogDuration("chat.DeleteInactiveBefore", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM chats c
		 WHERE COALESCE(
		     (SELECT MAX(m.created_at) FROM messages m WHERE m.chat_id = c.id),
		     c.created_at
		 ) < $1`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("chatRepo.DeleteInactiveBefore: %w", err)
	}
	return tag.RowsAffected(), nil
}
