package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/prytaneum/townhall-notifier/pkg/logger"
	"github.com/prytaneum/townhall-notifier/pkg/redis"
)

const (
	defaultConsumerTTL = 30 * time.Second
	closeTimeout       = 5 * time.Second
)

// nackScript hands a message back only while this consumer still holds it,
// so a message already recovered by another consumer is not queued twice.
var nackScript = goredis.NewScript(`
if redis.call("LREM", KEYS[1], 1, ARGV[1]) == 1 then
	redis.call("RPUSH", KEYS[2], ARGV[1])
	return 1
end
return 0
`)

// Redis implements the reliable-queue pattern. Every consumer owns the list
// "<queue>:processing:<id>" and keeps "<queue>:consumer:<id>" alive with a
// TTL. Receive moves a message from the queue to its own processing list
// atomically and Ack removes it from there. Connect requeues the consumer's
// own list and the lists of consumers whose heartbeat expired.
//
// The redis.Conn is shared and owned by the caller; Close leaves it open.
type Redis struct {
	conn        *redis.Conn
	queue       string
	id          string
	processing  string
	heartbeat   string
	ttl         time.Duration
	pollTimeout time.Duration
	log         *slog.Logger

	mu        sync.Mutex
	connected bool
	closed    bool
	stop      context.CancelFunc
	done      chan struct{}
}

func NewRedis(conn *redis.Conn, cfg Config, log *slog.Logger) *Redis {
	if log == nil {
		log = logger.Discard()
	}
	id := cfg.ConsumerID
	if id == "" {
		id = uuid.NewString()
	}
	ttl := cfg.ConsumerTTL
	if ttl <= 0 {
		ttl = defaultConsumerTTL
	}
	return &Redis{
		conn:        conn,
		queue:       cfg.Queue,
		id:          id,
		processing:  processingKey(cfg.Queue, id),
		heartbeat:   heartbeatKey(cfg.Queue, id),
		ttl:         ttl,
		pollTimeout: cfg.PollTimeout,
		log:         log.With(logger.Component("broker.redis"), slog.String("consumer_id", id)),
	}
}

func processingKey(queue, id string) string { return queue + ":processing:" + id }
func heartbeatKey(queue, id string) string  { return queue + ":consumer:" + id }

// ConsumerID names this consumer's processing list.
func (r *Redis) ConsumerID() string { return r.id }

// Connect pings the shared client, registers the heartbeat and recovers
// unacknowledged messages.
func (r *Redis) Connect(ctx context.Context) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	client, err := r.conn.Handle(ctx)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return err
	}
	if err := r.beat(ctx, client); err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	recovered, err := r.moveAll(ctx, client, r.processing)
	if err != nil {
		return fmt.Errorf("recover in-flight messages: %w", err)
	}
	stale, err := r.recoverStale(ctx, client)
	if err != nil {
		return fmt.Errorf("recover stale consumers: %w", err)
	}
	if recovered+stale > 0 {
		r.log.InfoContext(ctx, "requeued unacknowledged messages",
			slog.Int("own", recovered), slog.Int("stale", stale))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.connected = true
	if r.stop == nil {
		hbCtx, cancel := context.WithCancel(context.Background())
		r.stop, r.done = cancel, make(chan struct{})
		go r.keepAlive(hbCtx, r.done)
	}
	return nil
}

func (r *Redis) beat(ctx context.Context, client *goredis.Client) error {
	return client.Set(ctx, r.heartbeat, time.Now().UTC().Format(time.RFC3339), r.ttl).Err()
}

func (r *Redis) keepAlive(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(max(r.ttl/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		client, err := r.conn.Handle(ctx)
		if err == nil {
			err = r.beat(ctx, client)
		}
		if err != nil && ctx.Err() == nil {
			r.log.WarnContext(ctx, "heartbeat failed", logger.Error(err))
		}
	}
}

// moveAll requeues a processing list so its oldest message is consumed first.
func (r *Redis) moveAll(ctx context.Context, client *goredis.Client, from string) (int, error) {
	var n int
	for {
		err := client.LMove(ctx, from, r.queue, "LEFT", "RIGHT").Err()
		if errors.Is(err, goredis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// recoverStale requeues the processing lists of consumers without a live
// heartbeat.
func (r *Redis) recoverStale(ctx context.Context, client *goredis.Client) (int, error) {
	prefix := processingKey(r.queue, "")
	var total int
	iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id := strings.TrimPrefix(key, prefix)
		if id == r.id {
			continue
		}
		alive, err := client.Exists(ctx, heartbeatKey(r.queue, id)).Result()
		if err != nil {
			return total, err
		}
		if alive > 0 {
			continue
		}
		n, err := r.moveAll(ctx, client, key)
		total += n
		if err != nil {
			return total, err
		}
		if n > 0 {
			r.log.WarnContext(ctx, "recovered messages of a stale consumer",
				slog.String("stale_consumer_id", id), slog.Int("count", n))
		}
	}
	return total, iter.Err()
}

func (r *Redis) Receive(ctx context.Context) (Message, error) {
	client, err := r.conn.Handle(ctx)
	if err != nil {
		return Message{}, err
	}
	body, err := client.BLMove(ctx, r.queue, r.processing, "RIGHT", "LEFT", r.pollTimeout).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Message{}, ErrNoMessage
	}
	if err != nil {
		return Message{}, err
	}
	return Message{Body: body, handle: body}, nil
}

// Ack fails with ErrUnknownMessage when the message is no longer held by this
// consumer, which happens after its heartbeat lapsed and another consumer
// recovered it.
func (r *Redis) Ack(ctx context.Context, msg Message) error {
	body, ok := msg.handle.([]byte)
	if !ok {
		return ErrUnknownMessage
	}
	client, err := r.conn.Handle(ctx)
	if err != nil {
		return err
	}
	removed, err := client.LRem(ctx, r.processing, 1, body).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return fmt.Errorf("%w: not in %s", ErrUnknownMessage, r.processing)
	}
	return nil
}

// Nack moves the message back to the consuming end of the queue.
func (r *Redis) Nack(ctx context.Context, msg Message) error {
	body, ok := msg.handle.([]byte)
	if !ok {
		return ErrUnknownMessage
	}
	client, err := r.conn.Handle(ctx)
	if err != nil {
		return err
	}
	moved, err := nackScript.Run(ctx, client, []string{r.processing, r.queue}, body).Int()
	if err != nil {
		return err
	}
	if moved == 0 {
		return fmt.Errorf("%w: not in %s", ErrUnknownMessage, r.processing)
	}
	return nil
}

// Publish pushes to the producing end of the queue.
func (r *Redis) Publish(ctx context.Context, body []byte) error {
	client, err := r.conn.Handle(ctx)
	if err != nil {
		return err
	}
	return client.LPush(ctx, r.queue, body).Err()
}

// Close stops the heartbeat, hands unacknowledged messages back to the queue
// and removes the consumer's registration.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	connected, stop, done := r.connected, r.stop, r.done
	r.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	if !connected {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	client, err := r.conn.Handle(ctx)
	if err != nil {
		return err
	}
	n, err := r.moveAll(ctx, client, r.processing)
	if n > 0 {
		r.log.InfoContext(ctx, "handed back unacknowledged messages", slog.Int("count", n))
	}
	return errors.Join(err, client.Del(ctx, r.heartbeat).Err())
}
