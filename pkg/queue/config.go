package queue

import (
	"fmt"
	"time"
)

// Storage backends selectable through Config.Storage.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Storage            string        `env:"QUEUE_STORAGE" envDefault:"memory"`
	Queue              string        `env:"QUEUE_NAME" envDefault:"delivery"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	RetryBackoff       time.Duration `env:"QUEUE_RETRY_BACKOFF" envDefault:"30s"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"4"`
}

// NewStorage builds the configured backend. db is only used by the postgres
// backend.
func NewStorage(cfg Config, db DB) (Storage, error) {
	switch cfg.Storage {
	case StorageMemory, "":
		return NewMemoryStorage(WithMemoryRetryBackoff(cfg.RetryBackoff)), nil
	case StoragePostgres:
		if db == nil {
			return nil, ErrRepositoryNil
		}
		return NewPostgresStorage(db, cfg.RetryBackoff), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStorage, cfg.Storage)
	}
}
