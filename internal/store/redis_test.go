package store

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itemsvc/internal/item"
)

// newTestRedis connects to REDIS_ADDR and flushes the selected DB for a clean
// slate. Tests are skipped when REDIS_ADDR is not set.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping redis integration test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.FlushDB(testCtx).Err(); err != nil {
		t.Fatalf("failed to flush redis DB: %v", err)
	}
	t.Cleanup(func() {
		_ = client.FlushDB(testCtx)
		_ = client.Close()
	})
	return client
}

func TestRedis(t *testing.T) {
	testStore(t, func(t *testing.T) Store { return NewRedis(newTestRedis(t)) })
}

func TestRedis_Keys(t *testing.T) {
	client := newTestRedis(t)
	s := NewRedis(client)

	created, err := s.Create(testCtx, widget("Widget"))
	require.NoError(t, err)

	exists, err := client.Exists(testCtx, itemKey(created.ID)).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, exists)

	isMember, err := client.SIsMember(testCtx, statusKey(item.StatusActive), created.ID).Result()
	require.NoError(t, err)
	assert.True(t, isMember)

	_, err = s.Delete(testCtx, created.ID)
	require.NoError(t, err)

	n, err := client.SCard(testCtx, allItemsKey).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedis_PingClosed(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	s := NewRedis(client)

	err := s.Ping(testCtx)
	assert.ErrorIs(t, err, item.ErrUnavailable)
}

func TestDecodeItem(t *testing.T) {
	want, err := item.New(widget("Widget"), item.Now())
	require.NoError(t, err)
	data, err := json.Marshal(want)
	require.NoError(t, err)

	got, err := decodeItem(redis.NewStringResult(string(data), nil))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = decodeItem(redis.NewStringResult("", redis.Nil))
	assert.ErrorIs(t, err, item.ErrNotFound)

	_, err = decodeItem(redis.NewStringResult("{", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode item")
	assert.NotErrorIs(t, err, item.ErrUnavailable)

	for _, cause := range []error{
		&net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")},
		context.DeadlineExceeded,
		redis.ErrClosed,
	} {
		_, err = decodeItem(redis.NewStringResult("", cause))
		assert.ErrorIs(t, err, item.ErrUnavailable, cause.Error())
		assert.Contains(t, err.Error(), "get item")
	}
}
