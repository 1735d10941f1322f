package retry_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prytaneum/townhall-notifier/pkg/connstate"
	"github.com/prytaneum/townhall-notifier/pkg/retry"
)

func newCoordinator(t *testing.T, opts ...retry.Option) *retry.Coordinator {
	t.Helper()
	c := retry.New(append([]retry.Option{retry.WithDefaults(retry.Config{MaxAttempts: 3, Interval: time.Millisecond})}, opts...)...)
	t.Cleanup(c.Close)
	return c
}

func TestDo_Success(t *testing.T) {
	t.Parallel()

	c := newCoordinator(t)
	v, err := retry.Do(context.Background(), c, "mongo-connect", func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, connstate.Connected, c.Tracker().Status("mongo-connect"))

	_, inFlight := c.State("mongo-connect")
	assert.False(t, inFlight, "state is cleared after success")
}

func TestDo_RetryCeiling(t *testing.T) {
	t.Parallel()

	c := newCoordinator(t)
	last := errors.New("attempt 4")
	var calls atomic.Int32

	_, err := retry.Do(context.Background(), c, "send", func(context.Context) (int, error) {
		n := calls.Add(1)
		if n == 4 {
			return 0, last
		}
		return 0, errors.New("transient")
	}, retry.WithMaxAttempts(4))

	require.Error(t, err)
	assert.Same(t, last, err, "last error is propagated verbatim")
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, connstate.Failed, c.Tracker().Status("send"))
}

func TestDo_RecoversAfterFailures(t *testing.T) {
	t.Parallel()

	var (
		transitions []string
		mu          sync.Mutex
	)
	tracker := connstate.New(connstate.WithObserver(func(_ string, _, to connstate.Status) {
		mu.Lock()
		transitions = append(transitions, to.String())
		mu.Unlock()
	}))
	c := newCoordinator(t, retry.WithTracker(tracker))

	var hookCalls []int
	var calls int
	v, err := retry.Do(context.Background(), c, "broker-connect", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("refused")
		}
		return 42, nil
	}, retry.OnFailedAttempt(func(attempt int, err error) {
		hookCalls = append(hookCalls, attempt)
	}))

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, []int{1, 2}, hookCalls)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"CONNECTING", "RETRYING", "RETRYING", "CONNECTED"}, transitions)
}

func TestDo_Dedup(t *testing.T) {
	t.Parallel()

	c := newCoordinator(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	op := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "shared", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := retry.Do(context.Background(), c, "rabbit-connect", op)
			assert.NoError(t, err)
			results[i] = v
		}()
		if i == 0 {
			<-started
		}
	}

	require.Eventually(t, func() bool {
		s, ok := c.State("rabbit-connect")
		return ok && s.Waiters == 2
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"shared", "shared"}, results)
}

func TestDo_DedupSharesError(t *testing.T) {
	t.Parallel()

	c := newCoordinator(t)
	boom := errors.New("boom")
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	op := func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return 0, retry.Permanent(boom)
	}

	errs := make(chan error, 2)
	go func() {
		_, err := retry.Do(context.Background(), c, "k", op)
		errs <- err
	}()
	<-started
	go func() {
		_, err := retry.Do(context.Background(), c, "k", op)
		errs <- err
	}()

	require.Eventually(t, func() bool {
		s, ok := c.State("k")
		return ok && s.Waiters == 2
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)

	assert.Same(t, boom, <-errs)
	assert.Same(t, boom, <-errs)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_Permanent(t *testing.T) {
	t.Parallel()

	c := newCoordinator(t)
	bad := errors.New("invalid input")
	var calls int
	_, err := retry.Do(context.Background(), c, "k", func(context.Context) (int, error) {
		calls++
		return 0, retry.Permanent(bad)
	})
	assert.Same(t, bad, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, connstate.Failed, c.Tracker().Status("k"))
}

func TestDo_RetryIf(t *testing.T) {
	t.Parallel()

	c := newCoordinator(t)
	notFound := errors.New("region not found")
	var calls int
	_, err := retry.Do(context.Background(), c, "k", func(context.Context) (int, error) {
		calls++
		return 0, notFound
	}, retry.WithRetryIf(func(err error) bool { return !errors.Is(err, notFound) }))
	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, 1, calls)
}

func TestDo_CallerContext(t *testing.T) {
	t.Parallel()

	c := newCoordinator(t)
	release := make(chan struct{})
	finished := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := retry.Do(ctx, c, "slow", func(opCtx context.Context) (int, error) {
		defer close(finished)
		<-release
		return 1, opCtx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-finished
	assert.Eventually(t, func() bool {
		return c.Tracker().Status("slow") == connstate.Connected
	}, time.Second, time.Millisecond, "the sequence completes detached from the caller")
}

func TestDo_Close(t *testing.T) {
	t.Parallel()

	c := retry.New(retry.WithDefaults(retry.Config{MaxAttempts: 5, Interval: time.Hour}))
	transient := errors.New("down")

	done := make(chan error, 1)
	go func() {
		_, err := retry.Do(context.Background(), c, "k", func(context.Context) (int, error) {
			return 0, transient
		})
		done <- err
	}()

	require.Eventually(t, func() bool {
		return c.Tracker().Status("k") == connstate.Retrying
	}, time.Second, time.Millisecond)
	c.Close()

	err := <-done
	assert.ErrorIs(t, err, retry.ErrClosed)
	assert.ErrorIs(t, err, transient)

	_, err = retry.Do(context.Background(), c, "k", func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, retry.ErrClosed)
}

func TestDo_Ephemeral(t *testing.T) {
	t.Parallel()

	c := newCoordinator(t)
	_, err := retry.Do(context.Background(), c, "send:job:0", func(context.Context) (int, error) {
		return 1, nil
	}, retry.Ephemeral())
	require.NoError(t, err)
	assert.Empty(t, c.Tracker().Snapshot())
}

func TestDo_PanicBecomesError(t *testing.T) {
	t.Parallel()

	c := newCoordinator(t)
	_, err := retry.Do(context.Background(), c, "k", func(context.Context) (int, error) {
		panic("kaboom")
	}, retry.WithMaxAttempts(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestDo_InvalidAttempts(t *testing.T) {
	t.Parallel()

	c := newCoordinator(t)
	_, err := retry.Do(context.Background(), c, "k", func(context.Context) (int, error) {
		return 1, nil
	}, retry.WithMaxAttempts(0))
	assert.ErrorIs(t, err, retry.ErrInvalidMaxAttempts)
}

func TestDo_AttemptObserver(t *testing.T) {
	t.Parallel()

	var observed atomic.Int32
	c := newCoordinator(t, retry.WithAttemptObserver(func(string, int, error) { observed.Add(1) }))
	_, _ = retry.Do(context.Background(), c, "k", func(context.Context) (int, error) {
		return 0, errors.New("x")
	})
	assert.Equal(t, int32(3), observed.Load())
}
