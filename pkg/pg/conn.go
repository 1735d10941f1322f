package pg

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prytaneum/townhall-notifier/pkg/retry"
)

// ConnectKey is the retry and connection-status key of the pool.
const ConnectKey = "pg-connect"

// Conn owns a lazily created pgx pool.
type Conn struct {
	cfg     Config
	poolCfg *pgxpool.Config
	retry   *retry.Coordinator

	mu   sync.RWMutex
	pool *pgxpool.Pool
}

// New parses the connection string. It does not dial.
func New(cfg Config, coordinator *retry.Coordinator) (*Conn, error) {
	if cfg.ConnectionString == "" {
		return nil, ErrEmptyConnectionString
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDBConfig, err)
	}
	poolCfg.MaxConns = cfg.MaxOpenConns
	poolCfg.MinConns = cfg.MaxIdleConns
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	return &Conn{cfg: cfg, poolCfg: poolCfg, retry: coordinator}, nil
}

func (c *Conn) Connect(ctx context.Context) error {
	_, err := c.Handle(ctx)
	return err
}

// Handle returns the pool, creating and pinging it first when needed.
func (c *Conn) Handle(ctx context.Context) (*pgxpool.Pool, error) {
	c.mu.RLock()
	pool := c.pool
	c.mu.RUnlock()
	if pool != nil {
		return pool, nil
	}

	pool, err := retry.Do(ctx, c.retry, ConnectKey, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, c.poolCfg)
		if err != nil {
			return nil, err
		}
		// Authentication and permission problems only show up on first use.
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	},
		retry.WithMaxAttempts(max(c.cfg.RetryAttempts, 1)),
		retry.WithBackoff(retry.Linear{Step: c.cfg.RetryInterval}),
	)
	if err != nil {
		return nil, errors.Join(ErrFailedToOpenDBConnection, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool == nil {
		c.pool = pool
	}
	return c.pool, nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	pool := c.pool
	c.pool = nil
	c.mu.Unlock()
	if pool != nil {
		pool.Close()
		c.retry.Tracker().Disconnected(ConnectKey)
	}
}
