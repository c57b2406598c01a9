package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmarket/internal/model"
)

func TestSessionRoundTrip(t *testing.T) {
	c := New()
	ctx := context.Background()
	ident := model.Identity{UserID: "u1", Email: "u1@campus.test"}

	require.NoError(t, c.SetSession(ctx, "tok", ident))

	got, err := c.GetSession(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, ident, got)

	require.NoError(t, c.DeleteSession(ctx, "tok"))
	got, err = c.GetSession(ctx, "tok")
	require.NoError(t, err)
	assert.Empty(t, got.UserID)
}

func TestUnknownTokenYieldsZeroIdentity(t *testing.T) {
	c := New()
	got, err := c.GetSession(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, got.UserID)
}

func TestRateLimitWindow(t *testing.T) {
	c := New()
	ctx := context.Background()

	var lastAllowed bool
	for i := 0; i < 121; i++ {
		ok, err := c.CheckRateLimit(ctx, "u:u1")
		require.NoError(t, err)
		lastAllowed = ok
	}
	assert.False(t, lastAllowed)

	// A different key has its own counter.
	ok, err := c.CheckRateLimit(ctx, "u:u2")
	require.NoError(t, err)
	assert.True(t, ok)
}
