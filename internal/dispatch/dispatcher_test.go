package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/pkg/exception"
)

type resultRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *resultRecorder) record(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *resultRecorder) snapshot() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *resultRecorder) waitFor(t *testing.T, n int) []error {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := r.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := r.snapshot()
	require.GreaterOrEqual(t, len(got), n, "timed out waiting for %d results, have %d", n, len(got))
	return got
}

func zeroJitterThrottle() *Throttle {
	th := NewThrottle()
	th.maxJitter = time.Nanosecond
	return th
}

func TestDispatcherRunsTasks(t *testing.T) {
	rec := &resultRecorder{}
	var ran atomic.Int64
	d := NewDispatcher(Config{
		Workers:  2,
		QueueCap: 16,
		Throttle: zeroJitterThrottle(),
		OnResult: rec.record,
	})
	d.Start()
	defer d.Stop()

	for range 5 {
		require.NoError(t, d.Submit(func() error {
			ran.Add(1)
			return nil
		}))
	}

	results := rec.waitFor(t, 5)
	assert.EqualValues(t, 5, ran.Load())
	for _, err := range results {
		assert.NoError(t, err)
	}
}

func TestDispatcherCapturesTaskError(t *testing.T) {
	rec := &resultRecorder{}
	d := NewDispatcher(Config{
		Workers:  1,
		Throttle: zeroJitterThrottle(),
		OnResult: rec.record,
	})
	d.Start()
	defer d.Stop()

	require.NoError(t, d.Submit(func() error { return exception.ErrBrokerRejected }))
	require.NoError(t, d.Submit(func() error { return nil }))

	results := rec.waitFor(t, 2)
	assert.ErrorIs(t, results[0], exception.ErrBrokerRejected)
	assert.NoError(t, results[1])
}

func TestDispatcherRecoversTaskPanic(t *testing.T) {
	rec := &resultRecorder{}
	d := NewDispatcher(Config{
		Workers:  1,
		Throttle: zeroJitterThrottle(),
		OnResult: rec.record,
	})
	d.Start()
	defer d.Stop()

	require.NoError(t, d.Submit(func() error { panic("boom") }))
	require.NoError(t, d.Submit(func() error { return nil }))

	results := rec.waitFor(t, 2)
	require.Error(t, results[0])
	assert.Contains(t, results[0].Error(), "boom")
	assert.NoError(t, results[1])
}

func TestSubmitQueueFull(t *testing.T) {
	d := NewDispatcher(Config{Workers: 1, QueueCap: 2, Throttle: zeroJitterThrottle()})
	// Not started: nothing drains the queue.

	require.NoError(t, d.Submit(func() error { return nil }))
	require.NoError(t, d.Submit(func() error { return nil }))
	assert.ErrorIs(t, d.Submit(func() error { return nil }), exception.ErrDispatchQueueFull)
}

func TestSubmitNilTask(t *testing.T) {
	d := NewDispatcher(Config{})
	assert.ErrorIs(t, d.Submit(nil), exception.ErrDispatchNilTask)
}

func TestStartStopIdempotent(t *testing.T) {
	d := NewDispatcher(Config{Workers: 2, Throttle: zeroJitterThrottle()})
	d.Start()
	d.Start()
	d.Stop()
	d.Stop()
	d.Stop() // stop when already stopped is a no-op
}

func TestStopAbandonsQueuedTasks(t *testing.T) {
	rec := &resultRecorder{}
	release := make(chan struct{})
	started := make(chan struct{})

	d := NewDispatcher(Config{
		Workers:  1,
		QueueCap: 8,
		Throttle: zeroJitterThrottle(),
		OnResult: rec.record,
	})
	d.Start()

	require.NoError(t, d.Submit(func() error {
		close(started)
		<-release
		return nil
	}))
	<-started

	var abandonedRan atomic.Bool
	for range 3 {
		require.NoError(t, d.Submit(func() error {
			abandonedRan.Store(true)
			return nil
		}))
	}

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()
	close(release)
	<-done

	results := rec.waitFor(t, 4)
	assert.False(t, abandonedRan.Load(), "queued tasks must not run after stop")

	var abandoned int
	for _, err := range results {
		if err != nil {
			assert.ErrorIs(t, err, exception.ErrDispatchNotRunning)
			abandoned++
		}
	}
	assert.Equal(t, 3, abandoned)
}

func TestWorkerWaitsOutBackoff(t *testing.T) {
	rec := &resultRecorder{}
	th := zeroJitterThrottle()
	th.Update(0, time.Now().Add(300*time.Millisecond))

	d := NewDispatcher(Config{
		Workers:  1,
		Throttle: th,
		OnResult: rec.record,
	})
	d.Start()
	defer d.Stop()

	begin := time.Now()
	var executedAt time.Time
	require.NoError(t, d.Submit(func() error {
		executedAt = time.Now()
		return nil
	}))

	rec.waitFor(t, 1)
	assert.GreaterOrEqual(t, executedAt.Sub(begin), 250*time.Millisecond,
		"task must not execute before the quota reset deadline")
}
