package mongo

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/prytaneum/townhall-notifier/pkg/retry"
)

// ConnectKey is the retry and connection-status key of the mongo client.
const ConnectKey = "mongo-connect"

// Conn owns a lazily established mongo client. Concurrent Connect and Handle
// calls share one connect sequence.
type Conn struct {
	cfg   Config
	retry *retry.Coordinator

	mu     sync.RWMutex
	client *mongo.Client
}

func New(cfg Config, coordinator *retry.Coordinator) *Conn {
	return &Conn{cfg: cfg, retry: coordinator}
}

// Connect dials and pings the server, retrying through the coordinator.
func (c *Conn) Connect(ctx context.Context) error {
	_, err := c.Handle(ctx)
	return err
}

// Handle returns the connected client, connecting first when needed.
func (c *Conn) Handle(ctx context.Context) (*mongo.Client, error) {
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
		return nil, errors.Join(ErrFailedToConnectToMongo, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		c.client = client
	}
	return c.client, nil
}

// Database returns the configured database, connecting first when needed.
func (c *Conn) Database(ctx context.Context) (*mongo.Database, error) {
	client, err := c.Handle(ctx)
	if err != nil {
		return nil, err
	}
	return client.Database(c.cfg.Database), nil
}

// Close disconnects the client. The next Handle reconnects.
func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()
	if client == nil {
		return nil
	}
	c.retry.Tracker().Disconnected(ConnectKey)
	return client.Disconnect(ctx)
}

func (c *Conn) dial(ctx context.Context) (*mongo.Client, error) {
	client, err := mongo.Connect(
		options.Client().
			ApplyURI(c.cfg.ConnectionURL).
			SetConnectTimeout(c.cfg.ConnectTimeout).
			SetMaxPoolSize(c.cfg.MaxPoolSize).
			SetMinPoolSize(c.cfg.MinPoolSize).
			SetMaxConnIdleTime(c.cfg.MaxConnIdleTime),
	)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}
