package broker_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prytaneum/townhall-notifier/pkg/broker"
)

func receiveWithin(t *testing.T, b broker.Broker, d time.Duration) broker.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	for {
		msg, err := b.Receive(ctx)
		if errors.Is(err, broker.ErrNoMessage) {
			continue
		}
		require.NoError(t, err)
		return msg
	}
}

// Runs against a real cluster when BROKER_TEST_KAFKA_BROKERS is set.
func TestKafka_NackRedelivers(t *testing.T) {
	brokers := os.Getenv("BROKER_TEST_KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("BROKER_TEST_KAFKA_BROKERS not set")
	}
	ctx := context.Background()

	k, err := broker.NewKafka(broker.Config{
		Queue:        "test-" + uuid.NewString(),
		PollTimeout:  time.Second,
		KafkaBrokers: strings.Split(brokers, ","),
		KafkaGroupID: "test-" + uuid.NewString(),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })

	require.NoError(t, k.Publish(ctx, []byte("job")))
	require.NoError(t, k.Connect(ctx))

	msg := receiveWithin(t, k, time.Minute)
	assert.Equal(t, "job", string(msg.Body))
	require.NoError(t, k.Nack(ctx, msg))

	again := receiveWithin(t, k, time.Minute)
	assert.Equal(t, "job", string(again.Body))
	assert.Equal(t, msg.ID, again.ID)
	require.NoError(t, k.Ack(ctx, again))
}
