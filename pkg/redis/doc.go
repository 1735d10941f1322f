// Package redis manages the go-redis client used by the Redis broker backend.
//
// Conn dials lazily through the retry coordinator under ConnectKey. One Conn
// is shared by every broker user in the process; go-redis re-dials broken
// pool connections on its own, so the client lives until Close.
//
//	conn, err := redis.New(cfg, coordinator)
//	if err != nil {
//		return err
//	}
//	client, err := conn.Handle(ctx)
package redis
