package shutdownqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetQueue clears the global queue between tests without fighting init/Once.
func resetQueue(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		q.mu.Lock()
		q.tasks = nil
		q.closed = false
		q.mu.Unlock()
	})
}

type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) task(name string, err error) Task {
	return func(context.Context) error {
		r.mu.Lock()
		r.names = append(r.names, name)
		r.mu.Unlock()

		return err
	}
}

//nolint:paralleltest
func TestShutdown_RunsInReverseRegistrationOrder(t *testing.T) {
	resetQueue(t)

	rec := &recorder{}

	// registration order used by the api binary
	for _, name := range []string{"tracer", "postgres", "workers", "http server"} {
		Add(name, rec.task(name, nil))
	}

	require.NoError(t, Shutdown(t.Context()))
	assert.Equal(t, []string{"http server", "workers", "postgres", "tracer"}, rec.names)
}

//nolint:paralleltest
func TestShutdown_NilTaskIgnored(t *testing.T) {
	resetQueue(t)

	Add("nil", nil)

	assert.NoError(t, Shutdown(t.Context()))
}

//nolint:paralleltest
func TestShutdown_JoinsErrorsAndRecoversPanics(t *testing.T) {
	resetQueue(t)

	rec := &recorder{}
	dbErr := errors.New("close failed")

	Add("postgres", rec.task("postgres", dbErr))
	Add("workers", func(context.Context) error { panic("boom") })
	Add("http server", rec.task("http server", nil))

	err := Shutdown(t.Context())

	require.Error(t, err)
	require.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), `panic in shutdown task "workers": boom`)
	assert.Contains(t, err.Error(), "postgres")
	assert.Equal(t, []string{"http server", "postgres"}, rec.names)
}

//nolint:paralleltest
func TestShutdown_StopsWhenContextExpires(t *testing.T) {
	resetQueue(t)

	rec := &recorder{}

	Add("postgres", rec.task("postgres", nil))
	Add("workers", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	err := Shutdown(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, rec.names)
}

//nolint:paralleltest
func TestShutdown_IdempotentAndClosesQueue(t *testing.T) {
	resetQueue(t)

	rec := &recorder{}
	Add("first", rec.task("first", nil))

	require.NoError(t, Shutdown(t.Context()))

	// ignored once shutdown has started
	Add("late", rec.task("late", nil))

	require.NoError(t, Shutdown(t.Context()))
	assert.Equal(t, []string{"first"}, rec.names)
}
