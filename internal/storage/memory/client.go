package memory

import (
	"context"
	"sync"
	"time"

	"github.com/campusmarket/internal/model"
)

const (
	sessionTTL      = 30 * 24 * time.Hour
	rateLimitWindow = time.Minute
	rateLimitMax    = 120
)

type item struct {
	ident model.Identity
	exp   time.Time
}

// Client is the in-process SessionStore used by -dev mode and tests.
type Client struct {
	mu       sync.RWMutex
	sessions map[string]item
	limit    map[string][]time.Time
}

func New() *Client {
	return &Client{
		sessions: make(map[string]item),
		limit:    make(map[string][]time.Time),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetSession(ctx context.Context, token string, ident model.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[token] = item{ident: ident, exp: time.Now().Add(sessionTTL)}
	return nil
}

func (c *Client) GetSession(ctx context.Context, token string) (model.Identity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.sessions[token]
	if !ok || time.Now().After(v.exp) {
		return model.Identity{}, nil
	}
	return v.ident, nil
}

func (c *Client) DeleteSession(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, token)
	return nil
}

func (c *Client) CheckRateLimit(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	cut := now.Add(-rateLimitWindow)
	var kept []time.Time
	for _, t := range c.limit[key] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= rateLimitMax {
		c.limit[key] = kept
		return false, nil
	}
	c.limit[key] = append(kept, now)
	return true, nil
}
