package redis

import (
	"context"
	"errors"
)

// Healthcheck pings the current client without dialing.
func (c *Conn) Healthcheck() func(context.Context) error {
	return func(ctx context.Context) error {
		c.mu.RLock()
		client := c.client
		c.mu.RUnlock()
		if client == nil {
			return errors.Join(ErrHealthcheckFailed, ErrNotConnected)
		}
		if _, err := client.Ping(ctx).Result(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
