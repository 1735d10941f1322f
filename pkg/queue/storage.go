package queue

import "context"

// Storage is implemented by MemoryStorage and PostgresStorage.
type Storage interface {
	EnqueuerRepository
	WorkerRepository
	ListDLQ(ctx context.Context, limit int) ([]DeadLetter, error)
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*PostgresStorage)(nil)
)
