package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/prytaneum/townhall-notifier/pkg/logger"
)

// Kafka consumes the queue topic through a consumer group and commits offsets
// on Ack. Uncommitted messages are redelivered to the group after Connect or
// Nack rebuilds the reader. The writer dials on first use.
type Kafka struct {
	cfg    Config
	log    *slog.Logger
	dialer *kafka.Dialer
	writer *kafka.Writer

	mu     sync.Mutex
	reader *kafka.Reader
	closed bool
}

func NewKafka(cfg Config, log *slog.Logger) (*Kafka, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("%w: no kafka brokers configured", ErrNotConnected)
	}
	if log == nil {
		log = logger.Discard()
	}
	mechanism, err := saslMechanism(cfg)
	if err != nil {
		return nil, err
	}
	return &Kafka{
		cfg: cfg,
		log: log.With(logger.Component("broker.kafka")),
		dialer: &kafka.Dialer{
			Timeout:       10 * time.Second,
			DualStack:     true,
			SASLMechanism: mechanism,
		},
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.KafkaBrokers...),
			Topic:                  cfg.Queue,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			WriteTimeout:           10 * time.Second,
			Transport:              &kafka.Transport{SASL: mechanism},
		},
	}, nil
}

func saslMechanism(cfg Config) (sasl.Mechanism, error) {
	switch cfg.KafkaSASLMechanism {
	case "":
		return nil, nil
	case "PLAIN":
		return plain.Mechanism{Username: cfg.KafkaSASLUsername, Password: cfg.KafkaSASLPassword}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.KafkaSASLUsername, cfg.KafkaSASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.KafkaSASLUsername, cfg.KafkaSASLPassword)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSASL, cfg.KafkaSASLMechanism)
	}
}

// Connect checks that a broker is reachable and replaces the reader.
func (k *Kafka) Connect(ctx context.Context) error {
	conn, err := k.dialer.DialContext(ctx, "tcp", k.cfg.KafkaBrokers[0])
	if err != nil {
		return fmt.Errorf("dial kafka: %w", err)
	}
	_ = conn.Close()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.cfg.KafkaBrokers,
		GroupID:        k.cfg.KafkaGroupID,
		Topic:          k.cfg.Queue,
		Dialer:         k.dialer,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
	})

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		_ = reader.Close()
		return ErrClosed
	}
	if k.reader != nil {
		if err := k.reader.Close(); err != nil {
			k.log.WarnContext(ctx, "failed to close previous reader", logger.Error(err))
		}
	}
	k.reader = reader
	k.log.InfoContext(ctx, "connected", slog.Any("brokers", k.cfg.KafkaBrokers), slog.String("topic", k.cfg.Queue))
	return nil
}

// Receive fetches the next message without committing it.
func (k *Kafka) Receive(ctx context.Context) (Message, error) {
	reader, err := k.handle()
	if err != nil {
		return Message{}, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, k.cfg.PollTimeout)
	defer cancel()

	m, err := reader.FetchMessage(fetchCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Message{}, ErrNoMessage
		}
		return Message{}, err
	}
	return Message{
		ID:     m.Topic + "/" + strconv.Itoa(m.Partition) + "/" + strconv.FormatInt(m.Offset, 10),
		Body:   m.Value,
		handle: m,
	}, nil
}

func (k *Kafka) Ack(ctx context.Context, msg Message) error {
	m, ok := msg.handle.(kafka.Message)
	if !ok {
		return ErrUnknownMessage
	}
	reader, err := k.handle()
	if err != nil {
		return err
	}
	return reader.CommitMessages(ctx, m)
}

// Nack drops the reader without committing, so the group resumes from the
// last committed offset and fetches msg again. Messages fetched after msg
// are redelivered too.
func (k *Kafka) Nack(ctx context.Context, msg Message) error {
	if _, ok := msg.handle.(kafka.Message); !ok {
		return ErrUnknownMessage
	}
	if _, err := k.handle(); err != nil {
		return err
	}
	return k.Connect(ctx)
}

func (k *Kafka) Publish(ctx context.Context, body []byte) error {
	k.mu.Lock()
	closed := k.closed
	k.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Value: body, Time: time.Now()})
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	var errs []error
	if k.reader != nil {
		errs = append(errs, k.reader.Close())
		k.reader = nil
	}
	errs = append(errs, k.writer.Close())
	return errors.Join(errs...)
}

func (k *Kafka) handle() (*kafka.Reader, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, ErrClosed
	}
	if k.reader == nil {
		return nil, ErrNotConnected
	}
	return k.reader, nil
}
