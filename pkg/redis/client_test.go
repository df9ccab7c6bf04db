package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient("redis://"+mr.Addr(), "staging", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func TestNewClientInvalidURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "invalid scheme", url: "invalid://url"},
		{name: "empty URL", url: ""},
		{name: "unreachable server", url: "redis://127.0.0.1:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.url, "staging", zap.NewNop())
			assert.Error(t, err)
			assert.Nil(t, client)
		})
	}
}

func TestClientGetSet(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	key := client.KeyBuilder.KeyCatalogRugs()
	require.NoError(t, client.Set(ctx, key, `[{"filename":"a.jpg"}]`, time.Minute))

	val, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `[{"filename":"a.jpg"}]`, val)
}

func TestClientGetMiss(t *testing.T) {
	_, client := setupTestRedis(t)

	_, err := client.Get(context.Background(), "staging:missing")
	assert.Error(t, err)
	assert.True(t, IsNil(err))
}

func TestClientSetExpiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	key := client.KeyBuilder.KeyCatalogOptions()
	require.NoError(t, client.Set(ctx, key, "v", TTLCatalog))

	mr.FastForward(TTLCatalog + time.Second)

	_, err := client.Get(ctx, key)
	assert.True(t, IsNil(err))
}

func TestInvalidatePattern(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, client.KeyBuilder.KeyCatalogRugs(), "r", time.Minute))
	require.NoError(t, client.Set(ctx, client.KeyBuilder.KeyCatalogRooms("all"), "rm", time.Minute))
	require.NoError(t, client.Set(ctx, "staging:other", "keep", time.Minute))

	require.NoError(t, client.InvalidatePattern(ctx, client.KeyBuilder.KeyCatalogPattern()))

	_, err := client.Get(ctx, client.KeyBuilder.KeyCatalogRugs())
	assert.True(t, IsNil(err))
	_, err = client.Get(ctx, client.KeyBuilder.KeyCatalogRooms("all"))
	assert.True(t, IsNil(err))

	val, err := client.Get(ctx, "staging:other")
	require.NoError(t, err)
	assert.Equal(t, "keep", val)
}

func TestClientHealth(t *testing.T) {
	mr, client := setupTestRedis(t)

	assert.NoError(t, client.Health(context.Background()))

	mr.Close()
	assert.Error(t, client.Health(context.Background()))
}
