package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prytaneum/townhall-notifier/pkg/config"
)

type sampleConfig struct {
	Origin   string        `env:"ORIGIN" envDefault:"http://localhost:3000"`
	Cap      int           `env:"BATCH_CAP" envDefault:"1000"`
	Interval time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`
	Secret   string        `env:"JWT_SECRET,required"`
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("defaults and overrides", func(t *testing.T) {
		t.Parallel()
		var cfg sampleConfig
		err := config.Load(&cfg, config.WithEnvironment(map[string]string{
			"JWT_SECRET": "s3cret",
			"BATCH_CAP":  "250",
		}))
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:3000", cfg.Origin)
		assert.Equal(t, 250, cfg.Cap)
		assert.Equal(t, 5*time.Second, cfg.Interval)
		assert.Equal(t, "s3cret", cfg.Secret)
	})

	t.Run("missing required variable", func(t *testing.T) {
		t.Parallel()
		var cfg sampleConfig
		err := config.Load(&cfg, config.WithEnvironment(map[string]string{}))
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("prefix", func(t *testing.T) {
		t.Parallel()
		var cfg sampleConfig
		err := config.Load(&cfg,
			config.WithPrefix("INVITE_"),
			config.WithEnvironment(map[string]string{
				"INVITE_JWT_SECRET": "prefixed",
				"JWT_SECRET":        "ignored",
			}),
		)
		require.NoError(t, err)
		assert.Equal(t, "prefixed", cfg.Secret)
	})

	t.Run("nil pointer", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, config.Load[sampleConfig](nil), config.ErrNilPointer)
	})
}

func TestMustLoad(t *testing.T) {
	t.Parallel()

	var cfg sampleConfig
	assert.Panics(t, func() {
		config.MustLoad(&cfg, config.WithEnvironment(map[string]string{}))
	})
}
