package middleware

import (
	"context"

	"github.com/campusmarket/internal/model"
)

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity stores the resolved identity on the context (used by Auth and
// by tests).
func WithIdentity(ctx context.Context, ident model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// GetIdentity returns the resolved identity, or a zero value when the
// request was not authenticated.
func GetIdentity(ctx context.Context) model.Identity {
	v, _ := ctx.Value(identityKey).(model.Identity)
	return v
}

// GetUserID returns the authenticated user id from the context.
func GetUserID(ctx context.Context) string {
	return GetIdentity(ctx).UserID
}
