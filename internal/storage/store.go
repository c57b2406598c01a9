package storage

import (
	"context"

	"github.com/campusmarket/internal/model"
)

// SessionStore resolves bearer tokens to identities and tracks per-identity
// rate-limit counters. Implementations: redis.Client for deployments,
// memory.Client for -dev mode and tests.
type SessionStore interface {
	// SetSession binds an opaque bearer token to an identity with the
	// store's session TTL.
	SetSession(ctx context.Context, token string, ident model.Identity) error
	// GetSession returns the identity for a token, or a zero Identity if the
	// token is unknown or expired.
	GetSession(ctx context.Context, token string) (model.Identity, error)
	DeleteSession(ctx context.Context, token string) error
	// CheckRateLimit counts a hit for key and reports whether it is still
	// within the window budget.
	CheckRateLimit(ctx context.Context, key string) (allowed bool, err error)
	Close() error
}
