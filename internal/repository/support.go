package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusmarket/internal/logger"
	"github.com/campusmarket/internal/model"
)

type SupportRepository struct {
	pool *pgxpool.Pool
}

func NewSupportRepository(pool *pgxpool.Pool) *SupportRepository {
	return &SupportRepository{pool: pool}
}

func (r *SupportRepository) Create(ctx context.Context, m *model.HelpMessage) error {
	defer logger.DeferLogDuration("support.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO help_messages (id, user_id, body, is_from_admin, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.UserID, m.Body, m.IsFromAdmin, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("supportRepo.Create: %w", err)
	}
	return nil
}

// ListForUser returns one user's support thread, oldest first.
func (r *SupportRepository) ListForUser(ctx context.Context, userID string) ([]model.HelpMessage, error) {
	defer logger.DeferLogDuration("support.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, body, is_from_admin, created_at
		 FROM help_messages
		 WHERE user_id = $1
		 ORDER BY created_at, id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("supportRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	msgs := make([]model.HelpMessage, 0, 16)
	for rows.Next() {
		var m model.HelpMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Body, &m.IsFromAdmin, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("supportRepo.ListForUser scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("supportRepo.ListForUser rows: %w", err)
	}
	return msgs, nil
}

// ListThreads returns every support thread grouped by user, for the admin
// view. Threads are ordered by their latest message, newest thread first;
// messages within a thread are oldest first.
func (r *SupportRepository) ListThreads(ctx context.Context) ([]model.HelpThread, error) {
	defer logger.DeferLogDuration("support.ListThreads", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT h.id, h.user_id, h.body, h.is_from_admin, h.created_at, COALESCE(u.email, '')
		 FROM help_messages h
		 LEFT JOIN users u ON u.id = h.user_id
		 ORDER BY (SELECT MAX(created_at) FROM help_messages x WHERE x.user_id = h.user_id) DESC,
		          h.user_id, h.created_at, h.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("supportRepo.ListThreads query: %w", err)
	}
	defer rows.Close()

	threads := make([]model.HelpThread, 0, 8)
	var cur *model.HelpThread
	for rows.Next() {
		var m model.HelpMessage
		var email string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Body, &m.IsFromAdmin, &m.CreatedAt, &email); err != nil {
			return nil, fmt.Errorf("supportRepo.ListThreads scan: %w", err)
		}
		if cur == nil || cur.UserID != m.UserID {
			threads = append(threads, model.HelpThread{UserID: m.UserID, Email: email})
			cur = &threads[len(threads)-1]
		}
		cur.Messages = append(cur.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("supportRepo.ListThreads rows: %w", err)
	}
	return threads, nil
}
