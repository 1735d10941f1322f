// Package pg manages the pgx connection pool behind the durable task queue
// and applies its goose migrations.
//
// The pool is created on first use through the retry coordinator under
// ConnectKey, with a linear backoff so several services restarting together
// do not hammer the database in lockstep.
//
//	conn, err := pg.New(cfg, coordinator)
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//	if err := conn.Migrate(ctx, queue.Migrations, "migrations", log); err != nil {
//		return err
//	}
package pg
