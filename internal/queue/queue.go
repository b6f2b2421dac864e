// Package queue carries validation jobs from the API to the workers.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const DefaultQueue = "default"

var (
	// ErrEmpty is returned by Dequeue when no job arrived within the timeout.
	ErrEmpty     = errors.New("queue is empty")
	ErrQueueFull = errors.New("queue is full")
)

// Job is a unit of work addressed to a handler by Name.
type Job struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Queue      string            `json:"queue"`
	Title      string            `json:"title"`
	Args       map[string]string `json:"args"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	// TTL is how long the job may wait before it is picked up.
	TTL time.Duration `json:"ttl"`
	// FailureTTL is how long a failed job is kept.
	FailureTTL time.Duration `json:"failure_ttl"`
	Error      string        `json:"error,omitempty"`
	FailedAt   *time.Time    `json:"failed_at,omitempty"`
}

// Expired reports whether the job waited longer than its TTL.
func (j *Job) Expired(now time.Time) bool {
	return j.TTL > 0 && now.Sub(j.EnqueuedAt) > j.TTL
}

// prepare fills the fields Enqueue owns.
func (j *Job) prepare() {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Queue == "" {
		j.Queue = DefaultQueue
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now().UTC()
	}
}

func (j *Job) markFailed(cause error) {
	now := time.Now().UTC()
	j.FailedAt = &now
	if cause != nil {
		j.Error = cause.Error()
	}
}

type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	// Dequeue blocks up to timeout for the next job of queue. Jobs whose ttl
	// elapsed are dropped.
	Dequeue(ctx context.Context, queue string, timeout time.Duration) (*Job, error)
	// Fail keeps job with the cause for its failure ttl.
	Fail(ctx context.Context, job *Job, cause error) error
	Len(ctx context.Context, queue string) (int64, error)
}
