package redis

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/prytaneum/townhall-notifier/pkg/retry"
)

// ConnectKey is the retry and connection-status key of the redis client.
const ConnectKey = "redis-connect"

// Conn owns a lazily established redis client.
type Conn struct {
	cfg   Config
	opts  *redis.Options
	retry *retry.Coordinator

	mu     sync.RWMutex
	client *redis.Client
}

// New validates the connection URL. It does not dial.
func New(cfg Config, coordinator *retry.Coordinator) (*Conn, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}
	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}
	return &Conn{cfg: cfg, opts: opts, retry: coordinator}, nil
}

// NewFromClient wraps a client whose lifecycle the caller already manages.
func NewFromClient(client *redis.Client, coordinator *retry.Coordinator) *Conn {
	return &Conn{opts: client.Options(), retry: coordinator, client: client, cfg: Config{RetryAttempts: 1}}
}

func (c *Conn) Connect(ctx context.Context) error {
	_, err := c.Handle(ctx)
	return err
}

// Handle returns the connected client, connecting first when needed.
func (c *Conn) Handle(ctx context.Context) (*redis.Client, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client != nil {
		return client, nil
	}

	client, err := retry.Do(ctx, c.retry, ConnectKey, c.dial,
		retry.WithMaxAttempts(max(c.cfg.RetryAttempts, 1)),
		retry.WithInterval(c.cfg.RetryInterval),
	)
	if err != nil {
		return nil, errors.Join(ErrRedisNotReady, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		c.client = client
	} else if c.client != client {
		_ = client.Close()
	}
	return c.client, nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()
	if client == nil {
		return nil
	}
	c.retry.Tracker().Disconnected(ConnectKey)
	return client.Close()
}

func (c *Conn) dial(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(c.opts)
	pingCtx := ctx
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
