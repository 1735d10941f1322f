// Package queue is the internal, storage-backed task queue that holds
// delivery jobs between intake and dispatch.
//
// The package is organised around two components:
//
//   - Enqueuer adds tasks, optionally scheduled for a later time.
//   - Worker claims due tasks and runs the registered Handler for each.
//
// Both talk to storage through small repository interfaces. MemoryStorage
// serves tests and single-process development; PostgresStorage persists
// tasks so deferred jobs survive a restart.
//
// The worker has no loop of its own. The caller decides when to drain due
// work by calling ProcessDue, which claims every due task, runs the
// handlers with bounded concurrency and returns once they finish.
//
//	e, _ := queue.NewEnqueuer(storage)
//	_, err := e.Enqueue(ctx, job,
//		queue.WithScheduledAt(sendAt),
//		queue.WithMaxRetries(0),
//	)
//
//	w, _ := queue.NewWorker(storage, queue.WithMaxConcurrentTasks(4))
//	_ = w.RegisterHandler(queue.NewTaskHandler(handleJob))
//	stats, err := w.ProcessDue(ctx)
//
// A handler error records the failure. When the task has no retries left it
// moves to the dead letter queue with the error text; a task enqueued with
// WithMaxRetries(0) is dead-lettered on its first failure.
package queue
