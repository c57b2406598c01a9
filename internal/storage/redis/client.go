package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campusmarket/internal/model"
)

// Session TTL 30 days; rate limit 120 hits / minute per key.
const (
	SessionTTL      = 30 * 24 * time.Hour
	RateLimitWindow = time.Minute
	RateLimitMax    = 120
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) SetSession(ctx context.Context, token string, ident model.Identity) error {
	data, err := json.Marshal(ident)
	if err != nil {
		return fmt.Errorf("redis set session encode: %w", err)
	}
	return c.cli.Set(ctx, "session:"+token, data, SessionTTL).Err()
}

func (c *Client) GetSession(ctx context.Context, token string) (model.Identity, error) {
	val, err := c.cli.Get(ctx, "session:"+token).Result()
	if err == redis.Nil {
		return model.Identity{}, nil
	}
	if err != nil {
		return model.Identity{}, err
	}
	var ident model.Identity
	if err := json.Unmarshal([]byte(val), &ident); err != nil {
		return model.Identity{}, fmt.Errorf("redis get session decode: %w", err)
	}
	return ident, nil
}

func (c *Client) DeleteSession(ctx context.Context, token string) error {
	return c.cli.Del(ctx, "session:"+token).Err()
}

// CheckRateLimit increments limit:{key} and expires the counter on first hit.
func (c *Client) CheckRateLimit(ctx context.Context, key string) (bool, error) {
	k := "limit:" + key
	n, err := c.cli.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, k, RateLimitWindow)
	}
	return n <= int64(RateLimitMax), nil
}

// FlushDB clears the current Redis DB (session and rate-limit reset for
// tests or restarts).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
