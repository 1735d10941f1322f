package broker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prytaneum/townhall-notifier/pkg/broker"
)

func TestMemory_ReceiveAck(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b := broker.NewMemory()
	_, err := b.Receive(ctx)
	require.ErrorIs(t, err, broker.ErrNoMessage)

	require.NoError(t, b.Publish(ctx, []byte(`{"region":"west"}`)))
	require.NoError(t, b.Publish(ctx, []byte(`{"region":"east"}`)))

	msg, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"region":"west"}`, string(msg.Body))

	pending, inFlight := b.Len()
	assert.Equal(t, 1, pending)
	assert.Equal(t, 1, inFlight)

	require.NoError(t, b.Ack(ctx, msg))
	assert.ErrorIs(t, b.Ack(ctx, msg), broker.ErrUnknownMessage)

	_, inFlight = b.Len()
	assert.Zero(t, inFlight)
}

func TestMemory_ConnectRequeuesUnacked(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b := broker.NewMemory()
	for _, body := range []string{"a", "b", "c"} {
		require.NoError(t, b.Publish(ctx, []byte(body)))
	}
	first, err := b.Receive(ctx)
	require.NoError(t, err)
	second, err := b.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Ack(ctx, second))

	require.NoError(t, b.Connect(ctx))

	var order []string
	for {
		msg, err := b.Receive(ctx)
		if err != nil {
			require.ErrorIs(t, err, broker.ErrNoMessage)
			break
		}
		order = append(order, string(msg.Body))
	}
	assert.Equal(t, []string{string(first.Body), "c"}, order)
}

func TestMemory_NackRequeuesAtHead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b := broker.NewMemory()
	require.NoError(t, b.Publish(ctx, []byte("first")))
	require.NoError(t, b.Publish(ctx, []byte("second")))

	msg, err := b.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Nack(ctx, msg))
	assert.ErrorIs(t, b.Nack(ctx, msg), broker.ErrUnknownMessage)
	assert.ErrorIs(t, b.Ack(ctx, msg), broker.ErrUnknownMessage)

	pending, inFlight := b.Len()
	assert.Equal(t, 2, pending)
	assert.Zero(t, inFlight)

	again, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", string(again.Body))
	assert.Equal(t, msg.ID, again.ID)
	require.NoError(t, b.Ack(ctx, again))
}

func TestMemory_Closed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b := broker.NewMemory()
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Publish(ctx, []byte("x")), broker.ErrClosed)
	_, err := b.Receive(ctx)
	assert.ErrorIs(t, err, broker.ErrClosed)
	assert.ErrorIs(t, b.Connect(ctx), broker.ErrClosed)
}

func TestNew(t *testing.T) {
	t.Parallel()

	b, err := broker.New(broker.Config{Backend: broker.BackendMemory}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &broker.Memory{}, b)

	_, err = broker.New(broker.Config{Backend: broker.BackendRedis}, nil, nil)
	assert.ErrorIs(t, err, broker.ErrNotConnected)

	_, err = broker.New(broker.Config{Backend: "sqs"}, nil, nil)
	assert.ErrorIs(t, err, broker.ErrUnknownBackend)

	k, err := broker.New(broker.Config{Backend: broker.BackendKafka, KafkaBrokers: []string{"localhost:9092"}}, nil, nil)
	require.NoError(t, err)
	_, err = k.Receive(context.Background())
	assert.ErrorIs(t, err, broker.ErrNotConnected)
	assert.ErrorIs(t, k.Nack(context.Background(), broker.Message{ID: "foreign"}), broker.ErrUnknownMessage)
	assert.ErrorIs(t, k.Ack(context.Background(), broker.Message{ID: "foreign"}), broker.ErrUnknownMessage)

	_, err = broker.New(broker.Config{
		Backend:            broker.BackendKafka,
		KafkaBrokers:       []string{"localhost:9092"},
		KafkaSASLMechanism: "GSSAPI",
	}, nil, nil)
	assert.ErrorIs(t, err, broker.ErrUnsupportedSASL)
}
