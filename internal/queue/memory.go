package queue

import (
	"catalog-validation/internal/metrics"
	"context"
	"sync"
	"time"
)

const memoryQueueSize = 1024

// MemoryQueue keeps jobs in process. Jobs are lost on restart.
type MemoryQueue struct {
	mu     sync.Mutex
	queues map[string]chan *Job
	failed map[string]*Job
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		queues: make(map[string]chan *Job),
		failed: make(map[string]*Job),
	}
}

func (q *MemoryQueue) channel(name string) chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.queues[name]
	if !ok {
		ch = make(chan *Job, memoryQueueSize)
		q.queues[name] = ch
	}
	return ch
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	job.prepare()
	copied := *job
	select {
	case q.channel(job.Queue) <- &copied:
		metrics.QueueEnqueuedTotal.WithLabelValues(job.Queue).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ch := q.channel(queue)
	for {
		select {
		case job := <-ch:
			if job.Expired(time.Now()) {
				metrics.QueueDroppedTotal.WithLabelValues(queue).Inc()
				continue
			}
			return job, nil
		case <-timer.C:
			return nil, ErrEmpty
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *MemoryQueue) Fail(_ context.Context, job *Job, cause error) error {
	job.markFailed(cause)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pruneFailed(time.Now())
	q.failed[job.ID] = job
	metrics.QueueFailedTotal.WithLabelValues(job.Queue).Inc()
	return nil
}

// pruneFailed drops failed jobs past their failure ttl. Callers hold mu.
func (q *MemoryQueue) pruneFailed(now time.Time) {
	for id, job := range q.failed {
		if job.FailureTTL > 0 && job.FailedAt != nil && now.Sub(*job.FailedAt) > job.FailureTTL {
			delete(q.failed, id)
		}
	}
}

// Failed returns the failed job with id, if it is still kept.
func (q *MemoryQueue) Failed(id string) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pruneFailed(time.Now())
	job, ok := q.failed[id]
	return job, ok
}

func (q *MemoryQueue) Len(_ context.Context, queue string) (int64, error) {
	return int64(len(q.channel(queue))), nil
}
