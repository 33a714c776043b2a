package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/entity"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return mr, NewRedisStore(client, DefaultTTLs())
}

func TestCart_SaveLoadDelete(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	lines := []entity.CartLine{{
		ProductID:   "p-1",
		Branch:      "main",
		VariantKey:  "mint",
		VariantName: "Mint",
		Quantity:    2,
		UnitPrice:   decimal.RequireFromString("10.50"),
		Product:     entity.Product{ID: "p-1", Name: "Mint Pod"},
	}}
	require.NoError(t, store.SaveCart(ctx, "s1", lines))
	assert.Equal(t, 7*24*time.Hour, mr.TTL(CartKey("s1")))

	loaded, err := store.LoadCart(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 2, loaded[0].Quantity)
	assert.True(t, loaded[0].UnitPrice.Equal(decimal.RequireFromString("10.5")))
	assert.Equal(t, "Mint Pod", loaded[0].Product.Name)

	require.NoError(t, store.DeleteCart(ctx, "s1"))
	assert.False(t, mr.Exists(CartKey("s1")))
}

func TestCart_LoadMissingAndExpired(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	loaded, err := store.LoadCart(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.NoError(t, store.SaveCart(ctx, "s1", []entity.CartLine{{ProductID: "p", Quantity: 1}}))
	mr.FastForward(8 * 24 * time.Hour)

	loaded, err = store.LoadCart(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestCart_CorruptSnapshotStartsEmpty(t *testing.T) {
	mr, store := setupTestRedis(t)
	require.NoError(t, mr.Set(CartKey("s1"), "{not json"))

	loaded, err := store.LoadCart(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestBranch_ShortExpiry(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SaveBranch(ctx, "s1", "second"))
	branch, err := store.LoadBranch(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "second", branch)

	mr.FastForward(31 * time.Minute)
	branch, err = store.LoadBranch(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "", branch)
}

func TestAccount_SaveLoadDelete(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	account, err := store.LoadAccount(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, account)

	require.NoError(t, store.SaveAccount(ctx, "s1", entity.Account{FullName: "Juan Dela Cruz", PhoneNumber: "0917"}))
	assert.Equal(t, 24*time.Hour, mr.TTL(AccountKey("s1")))

	account, err = store.LoadAccount(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "0917", account.PhoneNumber)

	require.NoError(t, store.DeleteAccount(ctx, "s1"))
	account, err = store.LoadAccount(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestIdempotencyKey(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()

	ok, err := store.ClaimIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ClaimIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.ReleaseIdempotencyKey(ctx, "k1"))
	ok, err = store.ClaimIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
}
