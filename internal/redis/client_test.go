package redis

import (
	"context"
	"testing"
	"time"

	"fastsearch-cache/internal/common/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), &Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient_Defaults(t *testing.T) {
	mr := miniredis.RunT(t)

	config := &Config{Address: mr.Addr()}
	client, err := NewClient(context.Background(), config)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 10, config.PoolSize)
	assert.Equal(t, 5*time.Second, config.DialTimeout)
	assert.Equal(t, mr.Addr(), client.Address())
}

func TestNewClient_Errors(t *testing.T) {
	_, err := NewClient(context.Background(), nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	_, err = NewClient(context.Background(), &Config{Address: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConnection))
}

func TestClient_Health(t *testing.T) {
	client, mr := setupTestRedis(t)
	assert.NoError(t, client.Health(context.Background()))

	mr.Close()
	assert.Error(t, client.Health(context.Background()))
}

func TestClient_Info(t *testing.T) {
	client, _ := setupTestRedis(t)

	info, err := client.Info(context.Background(), "clients")
	require.NoError(t, err)
	assert.Contains(t, info, "connected_clients")
}

func TestClient_PubSub(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	pubsub := client.Subscribe(ctx, "cache:test")
	defer pubsub.Close()
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, client.Publish(ctx, "cache:test", map[string]string{"key": "k"}))

	msg, err := pubsub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"k"}`, msg.Payload)

	assert.Error(t, client.Publish(ctx, "cache:test", make(chan int)))
}
