// Package broker is the durable "notifications" queue that external
// producers publish jobs to.
//
// Three backends implement Broker: a Redis reliable list, a Kafka consumer
// group and an in-memory queue for tests. Delivery is at least once: a
// message received but not acknowledged is delivered again after Nack, after
// a reconnect, or, on Redis, once its consumer stops heartbeating.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prytaneum/townhall-notifier/pkg/redis"
)

var (
	ErrNoMessage       = errors.New("broker: no message available")
	ErrClosed          = errors.New("broker: closed")
	ErrNotConnected    = errors.New("broker: not connected")
	ErrUnknownMessage  = errors.New("broker: message was not received from this broker")
	ErrUnknownBackend  = errors.New("broker: unknown backend")
	ErrUnsupportedSASL = errors.New("broker: unsupported SASL mechanism")
)

// Message is one received job. handle is backend bookkeeping used by Ack.
type Message struct {
	ID     string
	Body   []byte
	handle any
}

// Broker is the queue capability consumed by the notification consumer.
type Broker interface {
	// Connect establishes the connection and requeues messages that were
	// received but never acknowledged.
	Connect(ctx context.Context) error
	// Receive waits up to the configured poll timeout and returns
	// ErrNoMessage when the queue stays empty.
	Receive(ctx context.Context) (Message, error)
	Ack(ctx context.Context, msg Message) error
	// Nack hands a received message back for redelivery.
	Nack(ctx context.Context, msg Message) error
	// Publish does not need Connect, so producers never trigger the
	// redelivery done there.
	Publish(ctx context.Context, body []byte) error
	Close() error
}

// Backends selectable through Config.Backend.
const (
	BackendRedis  = "redis"
	BackendKafka  = "kafka"
	BackendMemory = "memory"
)

// Config is read from the environment.
type Config struct {
	Backend     string        `env:"BROKER_BACKEND" envDefault:"redis"`
	Queue       string        `env:"BROKER_QUEUE" envDefault:"notifications"`
	PollTimeout time.Duration `env:"BROKER_POLL_TIMEOUT" envDefault:"1s"`

	// ConsumerID names the redis processing list; empty means a random one.
	ConsumerID string `env:"BROKER_CONSUMER_ID"`
	// ConsumerTTL is how long a silent redis consumer keeps its in-flight
	// messages before another consumer recovers them.
	ConsumerTTL time.Duration `env:"BROKER_CONSUMER_TTL" envDefault:"30s"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"townhall-notifier"`

	// KafkaSASLMechanism is PLAIN, SCRAM-SHA-256, SCRAM-SHA-512 or empty.
	KafkaSASLMechanism string `env:"KAFKA_SASL_MECHANISM"`
	KafkaSASLUsername  string `env:"KAFKA_SASL_USERNAME"`
	KafkaSASLPassword  string `env:"KAFKA_SASL_PASSWORD"`
}

// New builds the configured backend. redisConn is only used by the redis
// backend and may be nil otherwise.
func New(cfg Config, redisConn *redis.Conn, log *slog.Logger) (Broker, error) {
	switch cfg.Backend {
	case BackendRedis:
		if redisConn == nil {
			return nil, fmt.Errorf("%w: redis backend needs a redis connection", ErrNotConnected)
		}
		return NewRedis(redisConn, cfg, log), nil
	case BackendKafka:
		return NewKafka(cfg, log)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
