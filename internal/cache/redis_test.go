package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/storefront/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client), mr
}

func testCart(sessionID string) *domain.Cart {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Cart{
		ID:        11,
		SessionID: sessionID,
		Items: []domain.CartItem{
			{ProductID: 1, Quantity: 2, AddedAt: now},
			{ProductID: 4, Quantity: 1, AddedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestGet_Hit(t *testing.T) {
	cache, mr := setupTestRedis(t)

	data, err := json.Marshal(testCart("sess-1"))
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey("sess-1"), string(data)))

	got, err := cache.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.ID)
	require.Len(t, got.Items, 2)
	assert.Equal(t, 2, got.Items[0].Quantity)
}

func TestGet_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	_, err := cache.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestGet_CorruptEntry(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cacheKey("bad"), "{not json"))

	_, err := cache.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestSet_AppliesTTLWithJitter(t *testing.T) {
	cache, mr := setupTestRedis(t)

	require.NoError(t, cache.Set(context.Background(), "sess-2", testCart("sess-2")))

	assert.True(t, mr.Exists(cacheKey("sess-2")))
	ttl := mr.TTL(cacheKey("sess-2"))
	assert.GreaterOrEqual(t, ttl, defaultTTL)
	assert.Less(t, ttl, defaultTTL+5*time.Minute)
}

func TestSet_ThenExpire(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "sess-3", testCart("sess-3")))
	mr.FastForward(25 * time.Minute)

	_, err := cache.Get(ctx, "sess-3")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestDelete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "sess-4", testCart("sess-4")))
	require.NoError(t, cache.Delete(ctx, "sess-4"))
	assert.False(t, mr.Exists(cacheKey("sess-4")))

	// deleting a missing key is not an error
	require.NoError(t, cache.Delete(ctx, "sess-4"))
}

func TestRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewRedisCache(client)
	mr.Close()

	_, err = cache.Get(context.Background(), "sess-5")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestNop(t *testing.T) {
	var c CartCache = Nop{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "s", testCart("s")))
	_, err := c.Get(ctx, "s")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, c.Delete(ctx, "s"))
}
