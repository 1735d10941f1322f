// Package mongo manages the MongoDB client that backs the subscriber store.
//
// Conn connects lazily. Every dial goes through the shared retry coordinator
// under ConnectKey, so concurrent first uses wait on one connect sequence and
// the connection status is visible in the tracker and in metrics.
//
//	conn := mongo.New(cfg, coordinator)
//	db, err := conn.Database(ctx)
//	if err != nil {
//		return err
//	}
//	defer conn.Close(context.Background())
//
// A malformed URI fails the sequence at once; ping failures are retried up to
// Config.RetryAttempts.
package mongo
