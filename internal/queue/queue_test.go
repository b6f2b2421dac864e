package queue

import (
	"catalog-validation/config"
	"catalog-validation/pkg/logger"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisQueue(t *testing.T) (*miniredis.Miniredis, *RedisQueue) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisQueue(client, logger.NewNop())
}

func TestRedisQueueRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, q := setupRedisQueue(t)

	require.NoError(t, q.Enqueue(ctx, &Job{Name: "a", Queue: "validation", Args: map[string]string{"resource_id": "r1"}}))
	require.NoError(t, q.Enqueue(ctx, &Job{Name: "b", Queue: "validation"}))

	n, err := q.Len(ctx, "validation")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	first, err := q.Dequeue(ctx, "validation", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", first.Name)
	assert.Equal(t, "r1", first.Args["resource_id"])
	assert.NotEmpty(t, first.ID)

	second, err := q.Dequeue(ctx, "validation", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b", second.Name)

	_, err = q.Dequeue(ctx, "validation", time.Second)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRedisQueueDropsExpiredJobs(t *testing.T) {
	ctx := context.Background()
	_, q := setupRedisQueue(t)

	require.NoError(t, q.Enqueue(ctx, &Job{
		Name:       "old",
		EnqueuedAt: time.Now().Add(-2 * time.Hour),
		TTL:        time.Hour,
	}))
	require.NoError(t, q.Enqueue(ctx, &Job{Name: "fresh", TTL: time.Hour}))

	job, err := q.Dequeue(ctx, DefaultQueue, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "fresh", job.Name)
}

func TestRedisQueueFailKeepsJobForFailureTTL(t *testing.T) {
	ctx := context.Background()
	mr, q := setupRedisQueue(t)

	job := &Job{ID: "job-1", Name: "a", Queue: "validation", FailureTTL: time.Hour}
	require.NoError(t, q.Fail(ctx, job, errors.New("boom")))

	key := failedKey("validation", "job-1")
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))
	stored, err := mr.Get(key)
	require.NoError(t, err)
	assert.Contains(t, stored, "boom")
}

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	require.NoError(t, q.Enqueue(ctx, &Job{Name: "a"}))
	n, _ := q.Len(ctx, DefaultQueue)
	assert.Equal(t, int64(1), n)

	job, err := q.Dequeue(ctx, DefaultQueue, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "a", job.Name)

	_, err = q.Dequeue(ctx, DefaultQueue, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrEmpty)

	require.NoError(t, q.Fail(ctx, job, errors.New("boom")))
	failed, ok := q.Failed(job.ID)
	require.True(t, ok)
	assert.Equal(t, "boom", failed.Error)
}

func TestWorkerDispatchesByName(t *testing.T) {
	q := NewMemoryQueue()
	w := NewWorker(q, DefaultQueue, config.Worker{MaxConcurrency: 2, PollTimeout: 10 * time.Millisecond}, logger.NewNop())

	var (
		handled atomic.Int32
		wg      sync.WaitGroup
	)
	wg.Add(3)
	w.Register("ok", func(ctx context.Context, job *Job) error {
		handled.Add(1)
		wg.Done()
		return nil
	})
	w.Register("panics", func(ctx context.Context, job *Job) error {
		defer wg.Done()
		panic("handler exploded")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	bg := context.Background()
	require.NoError(t, q.Enqueue(bg, &Job{ID: "1", Name: "ok"}))
	require.NoError(t, q.Enqueue(bg, &Job{ID: "2", Name: "ok"}))
	require.NoError(t, q.Enqueue(bg, &Job{ID: "3", Name: "panics"}))
	require.NoError(t, q.Enqueue(bg, &Job{ID: "4", Name: "unknown"}))

	wg.Wait()
	require.Eventually(t, func() bool {
		_, panicked := q.Failed("3")
		_, unknown := q.Failed("4")
		return panicked && unknown
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(2), handled.Load())

	failed, _ := q.Failed("3")
	assert.Contains(t, failed.Error, "handler exploded")
}

func TestWorkerRecordsFailureAfterJobTimeout(t *testing.T) {
	mr, q := setupRedisQueue(t)
	w := NewWorker(q, DefaultQueue, config.Worker{
		MaxConcurrency: 1,
		PollTimeout:    10 * time.Millisecond,
		JobTimeout:     50 * time.Millisecond,
	}, logger.NewNop())
	w.Register("slow", func(ctx context.Context, job *Job) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, q.Enqueue(context.Background(), &Job{ID: "slow-1", Name: "slow", FailureTTL: time.Hour}))

	key := failedKey(DefaultQueue, "slow-1")
	require.Eventually(t, func() bool { return mr.Exists(key) }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	stored, err := mr.Get(key)
	require.NoError(t, err)
	assert.Contains(t, stored, "context deadline exceeded")
}
