package realtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cognita/watchparty/internal/models"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("redis unreachable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisFanoutBetweenHubs(t *testing.T) {
	rdb := testRedis(t)
	ps := NewRedisPubSub(rdb, zaptest.NewLogger(t))
	h1 := NewHub(zaptest.NewLogger(t), ps, ps)
	h2 := NewHub(zaptest.NewLogger(t), ps, ps)
	t.Cleanup(h1.Close)
	t.Cleanup(h2.Close)

	a, b := testClient(t, h1, "a", 8), testClient(t, h2, "b", 8)
	room := uuid.New()
	h1.JoinRoom(a, room)
	h2.JoinRoom(b, room)

	h1.Broadcast(models.RoomChannel(room), models.EventNewMessage, map[string]string{"content": "hi"}, uuid.Nil)

	select {
	case msg := <-b.send:
		assert.Equal(t, models.EventNewMessage, msg.Event)
		assert.JSONEq(t, `{"content":"hi"}`, string(msg.Data))
	case <-time.After(3 * time.Second):
		t.Fatal("remote hub did not receive the broadcast")
	}

	time.Sleep(100 * time.Millisecond)
	require.Len(t, drain(a), 1, "publisher's own event is not delivered twice")
}
