package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/siteguard/internal/common/configtypes"
)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&configtypes.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestNewClient_Errors(t *testing.T) {
	_, err := NewClient(nil, zap.NewNop())
	assert.ErrorContains(t, err, "redis config is required")

	_, err = NewClient(&configtypes.RedisConfig{Addr: "localhost:6379"}, nil)
	assert.ErrorContains(t, err, "logger is required")

	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewClient(&configtypes.RedisConfig{Addr: addr}, zap.NewNop())
	assert.ErrorContains(t, err, "failed to connect to Redis")
}

func TestClient_GetSet(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	_, found, err := client.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, client.Set(ctx, "k", "v", time.Minute))
	value, found, err := client.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", value)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	_, found, err = client.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, client.Set(ctx, "a", "1", 0))
	assert.True(t, mr.Exists("a"))
	assert.Equal(t, time.Duration(0), mr.TTL("a"))
}

func TestClient_HealthCheck(t *testing.T) {
	client, mr := setupTestClient(t)

	assert.NoError(t, client.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, client.HealthCheck(context.Background()))
}

func TestClient_GetError(t *testing.T) {
	client, mr := setupTestClient(t)
	mr.SetError("LOADING")

	_, _, err := client.Get(context.Background(), "k")
	assert.ErrorContains(t, err, "redis get failed")
}
