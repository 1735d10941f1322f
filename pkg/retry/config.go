package retry

import "time"

// Config holds the process-wide retry defaults.
type Config struct {
	MaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"5"`
	Interval    time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`
}
