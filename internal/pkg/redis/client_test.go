package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/Guildhall/config"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client, err := NewClient(&config.RedisConfig{Host: mr.Host(), Port: port, PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestNewClient_Unreachable(t *testing.T) {
	_, err := NewClient(&config.RedisConfig{Host: "127.0.0.1", Port: 1})
	assert.Error(t, err)
}

func TestClient_JSONCache(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	type profile struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	var got profile
	assert.ErrorIs(t, client.GetJSON(ctx, "user:1", &got), ErrCacheMiss)

	require.NoError(t, client.SetJSON(ctx, "user:1", profile{ID: "1", Name: "alice"}, time.Minute))
	require.NoError(t, client.GetJSON(ctx, "user:1", &got))
	assert.Equal(t, "alice", got.Name)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, client.GetJSON(ctx, "user:1", &got), ErrCacheMiss)
}

func TestClient_Del(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("a", "1"))
	require.NoError(t, client.Del(ctx))
	require.NoError(t, client.Del(ctx, "a"))
	assert.False(t, mr.Exists("a"))
}

func TestClient_PublishSubscribe(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub, err := client.PSubscribe(ctx, "events:*")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, client.Publish(ctx, "events:server:1", []byte("hello")))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "events:server:1", msg.Channel)
	assert.Equal(t, "hello", msg.Payload)
}
