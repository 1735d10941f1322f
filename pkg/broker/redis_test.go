package broker_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prytaneum/townhall-notifier/pkg/broker"
	"github.com/prytaneum/townhall-notifier/pkg/redis"
	"github.com/prytaneum/townhall-notifier/pkg/retry"
)

func newRedisConn(t *testing.T, url string) *redis.Conn {
	t.Helper()
	coordinator := retry.New()
	t.Cleanup(coordinator.Close)
	conn, err := redis.New(redis.Config{ConnectionURL: url, RetryAttempts: 1, ConnectTimeout: time.Second}, coordinator)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newRedisConsumer(t *testing.T, conn *redis.Conn, queue, id string) *broker.Redis {
	t.Helper()
	b := broker.NewRedis(conn, broker.Config{
		Queue:       queue,
		PollTimeout: 100 * time.Millisecond,
		ConsumerID:  id,
		ConsumerTTL: time.Second,
	}, nil)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestRedis_WithoutServer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	conn := newRedisConn(t, "redis://127.0.0.1:1/0")
	b := broker.NewRedis(conn, broker.Config{Queue: "notifications"}, nil)
	assert.NotEmpty(t, b.ConsumerID())

	assert.ErrorIs(t, b.Ack(ctx, broker.Message{ID: "foreign"}), broker.ErrUnknownMessage)
	assert.ErrorIs(t, b.Nack(ctx, broker.Message{ID: "foreign"}), broker.ErrUnknownMessage)

	require.NoError(t, b.Close(), "closing a broker that never connected does not dial")
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Connect(ctx), broker.ErrClosed)

	named := broker.NewRedis(conn, broker.Config{Queue: "notifications", ConsumerID: "worker-1"}, nil)
	assert.Equal(t, "worker-1", named.ConsumerID())
}

// Runs against a real server when BROKER_TEST_REDIS_URL is set.
func TestRedis_Consumers(t *testing.T) {
	url := os.Getenv("BROKER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BROKER_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	conn := newRedisConn(t, url)
	queue := "test-" + uuid.NewString()

	t.Run("connect does not steal in-flight messages", func(t *testing.T) {
		a := newRedisConsumer(t, conn, queue, "a")
		b := newRedisConsumer(t, conn, queue, "b")
		require.NoError(t, a.Connect(ctx))
		require.NoError(t, a.Publish(ctx, []byte("m1")))

		msg, err := a.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "m1", string(msg.Body))

		require.NoError(t, b.Connect(ctx))
		_, err = b.Receive(ctx)
		assert.ErrorIs(t, err, broker.ErrNoMessage)

		require.NoError(t, a.Ack(ctx, msg))
		assert.ErrorIs(t, a.Ack(ctx, msg), broker.ErrUnknownMessage)
		require.NoError(t, conn.Healthcheck()(ctx), "reconnecting keeps the shared client open")
	})

	t.Run("nack redelivers", func(t *testing.T) {
		a := newRedisConsumer(t, conn, queue, "nack")
		require.NoError(t, a.Connect(ctx))
		require.NoError(t, a.Publish(ctx, []byte("m2")))

		msg, err := a.Receive(ctx)
		require.NoError(t, err)
		require.NoError(t, a.Nack(ctx, msg))
		assert.ErrorIs(t, a.Nack(ctx, msg), broker.ErrUnknownMessage)

		again, err := a.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "m2", string(again.Body))
		require.NoError(t, a.Ack(ctx, again))
	})

	t.Run("connect recovers stale consumers", func(t *testing.T) {
		client, err := conn.Handle(ctx)
		require.NoError(t, err)
		require.NoError(t, client.LPush(ctx, queue+":processing:crashed", "m3").Err())

		a := newRedisConsumer(t, conn, queue, "survivor")
		require.NoError(t, a.Connect(ctx))

		msg, err := a.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "m3", string(msg.Body))
		require.NoError(t, a.Ack(ctx, msg))
	})

	t.Run("close hands messages back", func(t *testing.T) {
		a := newRedisConsumer(t, conn, queue, "leaving")
		b := newRedisConsumer(t, conn, queue, "staying")
		require.NoError(t, a.Connect(ctx))
		require.NoError(t, b.Connect(ctx))
		require.NoError(t, a.Publish(ctx, []byte("m4")))

		_, err := a.Receive(ctx)
		require.NoError(t, err)
		require.NoError(t, a.Close())

		msg, err := b.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "m4", string(msg.Body))
		require.NoError(t, b.Ack(ctx, msg))
	})
}
