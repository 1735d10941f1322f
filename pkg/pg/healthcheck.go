package pg

import (
	"context"
	"errors"
)

func (c *Conn) Healthcheck() func(context.Context) error {
	return func(ctx context.Context) error {
		c.mu.RLock()
		pool := c.pool
		c.mu.RUnlock()
		if pool == nil {
			return errors.Join(ErrHealthcheckFailed, ErrNotConnected)
		}
		if err := pool.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
