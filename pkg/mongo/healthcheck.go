package mongo

import (
	"context"
	"errors"
)

// Healthcheck returns a readiness probe that pings the server. It never
// dials: a client that is not connected yet reports ErrNotConnected.
func (c *Conn) Healthcheck() func(context.Context) error {
	return func(ctx context.Context) error {
		c.mu.RLock()
		client := c.client
		c.mu.RUnlock()
		if client == nil {
			return errors.Join(ErrHealthcheckFailed, ErrNotConnected)
		}
		if err := client.Ping(ctx, nil); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
