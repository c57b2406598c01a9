package service

import (
	"context"
	"time"

	"github.com/campusmarket/internal/logger"
)

// InactiveChatStore deletes chats whose last activity predates a cutoff.
type InactiveChatStore interface {
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper periodically removes chats that went quiet. Deleting the chat row
// cascades to its messages, so a sweep is a single statement per tick.
type Sweeper struct {
	chats    InactiveChatStore
	window   time.Duration
	interval time.Duration
}

func NewSweeper(chats InactiveChatStore, window, interval time.Duration) *Sweeper {
	return &Sweeper{chats: chats, window: window, interval: interval}
}

// Run sweeps on the configured interval until ctx is cancelled. A failed
// sweep is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	if s.window <= 0 || s.interval <= 0 {
		logger.Infof("chat sweeper disabled")
		return
	}
	logger.Infof("chat sweeper started window=%s interval=%s", s.window, s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.chats.DeleteInactiveBefore(ctx, time.Now().UTC().Add(-s.window))
			if err != nil {
				logger.Errorf("chat sweep: %v", err)
				continue
			}
			if n > 0 {
				logger.Infof("chat sweep removed %d inactive chats", n)
			}
		}
	}
}
