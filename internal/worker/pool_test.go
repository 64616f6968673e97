package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsJob(t *testing.T) {
	p := NewPool(Config{Workers: 2})
	defer p.Close()

	var ran atomic.Bool
	err := p.Submit(context.Background(), JobFunc(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}))
	require.NoError(t, err)
	assert.True(t, ran.Load())
}

func TestSubmitReturnsJobError(t *testing.T) {
	p := NewPool(Config{Workers: 1})
	defer p.Close()

	boom := errors.New("boom")
	err := p.Submit(context.Background(), JobFunc(func(ctx context.Context) error {
		return boom
	}))
	assert.Equal(t, boom, err)
}

func TestSubmitAsyncEventuallyRuns(t *testing.T) {
	p := NewPool(Config{Workers: 2})
	defer p.Close()

	var wg sync.WaitGroup
	var count atomic.Uint64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		err := p.SubmitAsync(context.Background(), JobFunc(func(ctx context.Context) error {
			defer wg.Done()
			count.Add(1)
			return nil
		}))
		require.NoError(t, err)
	}
	wg.Wait()
	assert.Equal(t, uint64(50), count.Load())
}

func TestSubmitAsyncRejectsWhenQueueFull(t *testing.T) {
	p := NewPool(Config{Workers: 1, QueueSize: 1})

	started := make(chan struct{})
	release := make(chan struct{})

	// Occupy the one worker, then fill the one queue slot.
	require.NoError(t, p.SubmitAsync(context.Background(), JobFunc(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})))
	<-started
	require.NoError(t, p.SubmitAsync(context.Background(), JobFunc(func(ctx context.Context) error {
		<-release
		return nil
	})))

	err := p.SubmitAsync(context.Background(), JobFunc(func(ctx context.Context) error { return nil }))
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	p.Close()
}

func TestPanicIsolatedToJob(t *testing.T) {
	var recovered atomic.Value
	p := NewPool(Config{
		Workers:      1,
		PanicHandler: func(r any) { recovered.Store(r) },
	})
	defer p.Close()

	err := p.Submit(context.Background(), JobFunc(func(ctx context.Context) error {
		panic("worker down")
	}))
	require.Error(t, err)
	assert.Equal(t, "worker down", recovered.Load())

	// The worker survived and keeps serving.
	err = p.Submit(context.Background(), JobFunc(func(ctx context.Context) error {
		return nil
	}))
	assert.NoError(t, err)
}

func TestCloseDrainsQueuedJobs(t *testing.T) {
	p := NewPool(Config{Workers: 1, QueueSize: 16})

	var count atomic.Uint64
	for i := 0; i < 10; i++ {
		require.NoError(t, p.SubmitAsync(context.Background(), JobFunc(func(ctx context.Context) error {
			count.Add(1)
			return nil
		})))
	}

	require.NoError(t, p.Close())
	assert.Equal(t, uint64(10), count.Load())

	err := p.SubmitAsync(context.Background(), JobFunc(func(ctx context.Context) error { return nil }))
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestDoubleCloseReturnsError(t *testing.T) {
	p := NewPool(Config{Workers: 1})
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Close(), ErrPoolClosed)
}

func TestWorkersClampedToOne(t *testing.T) {
	p := NewPool(Config{Workers: 0})
	defer p.Close()
	assert.Equal(t, 1, p.GetStats().Workers)

	err := p.Submit(context.Background(), JobFunc(func(ctx context.Context) error { return nil }))
	assert.NoError(t, err)
}

func TestSubmitHonorsContextWhileWaiting(t *testing.T) {
	p := NewPool(Config{Workers: 1, QueueSize: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.SubmitAsync(context.Background(), JobFunc(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})))
	<-started
	require.NoError(t, p.SubmitAsync(context.Background(), JobFunc(func(ctx context.Context) error {
		<-release
		return nil
	})))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, JobFunc(func(ctx context.Context) error { return nil }))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	p.Close()
}

func TestStatsCounters(t *testing.T) {
	p := NewPool(Config{Workers: 2, QueueSize: 8})
	defer p.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(context.Background(), JobFunc(func(ctx context.Context) error { return nil })))
	}
	err := p.Submit(context.Background(), JobFunc(func(ctx context.Context) error { return errors.New("fail") }))
	require.Error(t, err)

	stats := p.GetStats()
	assert.Equal(t, uint64(6), stats.Submitted)
	assert.Equal(t, uint64(5), stats.Completed)
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, 2, stats.Workers)
	assert.Equal(t, 8, stats.QueueSize)
	assert.Equal(t, 0, stats.QueueDepth)
}
