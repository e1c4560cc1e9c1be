package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Remaining int `json:"remaining"`
}

func setupTestCache(t *testing.T) (Service, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return NewService(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestEntitlementCache_SetGetInvalidate(t *testing.T) {
	svc, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, svc.SetEntitlement(ctx, "fan", "creator", "chat", payload{Remaining: 7}, 0))
	require.NoError(t, svc.SetEntitlement(ctx, "fan", "creator", "content", payload{Remaining: 1}, 0))

	var got payload
	require.NoError(t, svc.GetEntitlement(ctx, "fan", "creator", "chat", &got))
	assert.Equal(t, 7, got.Remaining)
	assert.Equal(t, TTLEntitlement, mr.TTL("entitlement:fan:creator:chat"))

	require.NoError(t, svc.InvalidateEntitlements(ctx, "fan", "creator"))
	assert.ErrorIs(t, svc.GetEntitlement(ctx, "fan", "creator", "chat", &got), ErrMiss)
	assert.ErrorIs(t, svc.GetEntitlement(ctx, "fan", "creator", "content", &got), ErrMiss)
}

func TestCache_Expiry(t *testing.T) {
	svc, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "k", payload{Remaining: 1}, time.Second))
	mr.FastForward(2 * time.Second)

	var got payload
	assert.ErrorIs(t, svc.Get(ctx, "k", &got), ErrMiss)
}

func TestCache_NilClientIsNoop(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()

	assert.False(t, svc.IsAvailable())
	assert.NoError(t, svc.Set(ctx, "k", 1, time.Minute))
	assert.NoError(t, svc.InvalidateEntitlements(ctx, "a", "b"))
	var v int
	assert.ErrorIs(t, svc.Get(ctx, "k", &v), ErrMiss)
}
