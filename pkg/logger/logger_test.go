package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prytaneum/townhall-notifier/pkg/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json by default", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))
		log.Info("hello")

		entry := decode(t, buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "hello", entry["msg"])
	})

	t.Run("text format", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithFormat(logger.FormatText))
		log.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("invalid format panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { logger.New(logger.WithFormat("xml")) })
	})

	t.Run("level filters records", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithLevel(slog.LevelWarn))
		log.Info("dropped")
		assert.Empty(t, buf.String())
	})

	t.Run("static attributes", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithAttr(slog.String("svc", "notifier")))
		log.Info("hello")
		assert.Equal(t, "notifier", decode(t, buf)["svc"])
	})
}

func TestWithEnvironment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env     string
		wantEnv string
		debug   bool
	}{
		{env: "production", wantEnv: logger.EnvProduction},
		{env: "prod", wantEnv: logger.EnvProduction},
		{env: "staging", wantEnv: logger.EnvStaging},
		{env: "development", wantEnv: logger.EnvDevelopment, debug: true},
		{env: "", wantEnv: logger.EnvDevelopment, debug: true},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Parallel()
			buf := &bytes.Buffer{}
			log := logger.New(logger.WithOutput(buf), logger.WithEnvironment(tt.env, "notifier"))
			log.Debug("probe")
			if !tt.debug {
				assert.Empty(t, buf.String())
				log.Info("probe")
				entry := decode(t, buf)
				assert.Equal(t, tt.wantEnv, entry["env"])
				assert.Equal(t, "notifier", entry["service"])
				return
			}
			assert.Contains(t, buf.String(), "env="+tt.wantEnv)
		})
	}
}

func TestJobExtractor(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(logger.WithOutput(buf), logger.WithContextExtractors(logger.JobExtractor))

	ctx := logger.WithJob(context.Background(), "job-1", "west")
	log.InfoContext(ctx, "dispatch")

	entry := decode(t, buf)
	job, ok := entry["job"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "job-1", job["id"])
	assert.Equal(t, "west", job["region"])

	buf.Reset()
	log.InfoContext(context.Background(), "no job")
	assert.NotContains(t, decode(t, buf), "job")
}

func TestWithContextValue(t *testing.T) {
	t.Parallel()

	type key struct{}
	buf := &bytes.Buffer{}
	log := logger.New(logger.WithOutput(buf), logger.WithContextValue("request_id", key{}))
	log.InfoContext(context.WithValue(context.Background(), key{}, "r-1"), "hello")
	assert.Equal(t, "r-1", decode(t, buf)["request_id"])
}

func TestAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.Attr{}, logger.Error(nil))
	assert.Equal(t, "error", logger.Error(errors.New("boom")).Key)
	assert.Equal(t, slog.Attr{}, logger.Errors(nil, nil))
	assert.Equal(t, "errors", logger.Errors(nil, errors.New("x")).Key)
	assert.Equal(t, "CONNECTING -> CONNECTED", logger.Transition("CONNECTING", "CONNECTED").Value.String())
	assert.Equal(t, "batch", logger.Batch(1, 10).Key)
}
