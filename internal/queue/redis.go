package queue

import (
	"catalog-validation/internal/metrics"
	"catalog-validation/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "validation:queue:"

type RedisQueue struct {
	client *redis.Client
	log    *logger.Logger
}

func NewRedisQueue(client *redis.Client, log *logger.Logger) *RedisQueue {
	return &RedisQueue{client: client, log: log}
}

func queueKey(queue string) string {
	return keyPrefix + queue
}

func failedKey(queue, id string) string {
	return keyPrefix + queue + ":failed:" + id
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	job.prepare()
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.client.LPush(ctx, queueKey(job.Queue), payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	metrics.QueueEnqueuedTotal.WithLabelValues(job.Queue).Inc()
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrEmpty
		}

		res, err := q.client.BRPop(ctx, remaining, queueKey(queue)).Result()
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		if err != nil {
			return nil, fmt.Errorf("failed to dequeue from %s: %w", queue, err)
		}

		// res is [key, value]
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			q.log.ErrorContext(ctx, "Dropping undecodable job", logger.StringField("queue", queue), logger.ErrorField(err))
			continue
		}
		if job.Expired(time.Now()) {
			q.log.WarnContext(ctx, "Dropping expired job",
				logger.StringField("queue", queue),
				logger.StringField("job_id", job.ID),
				logger.StringField("title", job.Title),
			)
			metrics.QueueDroppedTotal.WithLabelValues(queue).Inc()
			continue
		}
		return &job, nil
	}
}

func (q *RedisQueue) Fail(ctx context.Context, job *Job, cause error) error {
	job.markFailed(cause)
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.client.Set(ctx, failedKey(job.Queue, job.ID), payload, job.FailureTTL).Err(); err != nil {
		return fmt.Errorf("failed to store failed job %s: %w", job.ID, err)
	}
	metrics.QueueFailedTotal.WithLabelValues(job.Queue).Inc()
	return nil
}

func (q *RedisQueue) Len(ctx context.Context, queue string) (int64, error) {
	return q.client.LLen(ctx, queueKey(queue)).Result()
}
