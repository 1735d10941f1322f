package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prytaneum/townhall-notifier/core"
)

func testEnv(t *testing.T, extra map[string]string) map[string]string {
	t.Helper()
	env := map[string]string{
		"APP_ENV":            "development",
		"BROKER_BACKEND":     "memory",
		"QUEUE_STORAGE":      "memory",
		"SUBSCRIBER_STORE":   "memory",
		"SUBSCRIBER_REGIONS": "west,east",
		"JWT_SECRET":         "test-secret",
		"SENDER_EMAIL":       "noreply@prytaneum.io",
		"EMAIL_PROVIDER":     "dev",
		"EMAIL_DEV_DIR":      t.TempDir(),
		"HTTP_ADDR":          "127.0.0.1:0",
		"CONSUMER_INTERVAL":  "10ms",
	}
	for k, v := range extra {
		env[k] = v
	}
	return env
}

func execute(ctx context.Context, env map[string]string, args ...string) (string, error) {
	out := &bytes.Buffer{}
	root := newRootCommand(rootOptions{out: out, env: env})
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	t.Parallel()

	root := newRootCommand(rootOptions{})
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "consume", "publish", "migrate"}, names)
}

func TestPublish(t *testing.T) {
	t.Parallel()

	t.Run("publishes to the broker", func(t *testing.T) {
		t.Parallel()
		out, err := execute(context.Background(), testEnv(t, nil), "publish", "--region", "west")
		require.NoError(t, err)
		assert.Contains(t, out, "published notification for region west")
	})

	t.Run("invalid date is a client error", func(t *testing.T) {
		t.Parallel()
		_, err := execute(context.Background(), testEnv(t, nil), "publish", "--region", "west", "--at", "next tuesday")
		require.Error(t, err)
		assert.True(t, core.IsClientError(err))
	})

	t.Run("region flag is required", func(t *testing.T) {
		t.Parallel()
		_, err := execute(context.Background(), testEnv(t, nil), "publish")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "region")
	})

	t.Run("unknown broker backend", func(t *testing.T) {
		t.Parallel()
		_, err := execute(context.Background(), testEnv(t, map[string]string{"BROKER_BACKEND": "carrier-pigeon"}),
			"publish", "--region", "west")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown backend")
	})
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	t.Parallel()

	_, err := execute(context.Background(), testEnv(t, nil), "migrate")
	assert.ErrorIs(t, err, ErrMigrationsNotNeeded)
}

func TestConsume(t *testing.T) {
	t.Parallel()

	t.Run("stops on cancellation", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err := execute(ctx, testEnv(t, nil), "consume")
		assert.NoError(t, err)
	})

	t.Run("unknown subscriber store", func(t *testing.T) {
		t.Parallel()
		_, err := execute(context.Background(), testEnv(t, map[string]string{"SUBSCRIBER_STORE": "sqlite"}), "consume")
		assert.ErrorIs(t, err, ErrUnknownStore)
	})

	t.Run("missing signing secret", func(t *testing.T) {
		t.Parallel()
		_, err := execute(context.Background(), testEnv(t, map[string]string{"JWT_SECRET": ""}), "consume")
		assert.Error(t, err)
	})
}

func TestServe_StopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	out, err := execute(ctx, testEnv(t, nil), "serve")
	require.NoError(t, err)
	assert.Contains(t, out, "http server listening")
}
