package queue

import (
	"catalog-validation/config"
	"catalog-validation/pkg/logger"
	"catalog-validation/pkg/utils"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler runs one job. An error fails the job; jobs are never retried.
type Handler func(ctx context.Context, job *Job) error

const (
	errorBackoff = time.Second
	// failTimeout bounds recording a failed job once its own deadline passed.
	failTimeout = 10 * time.Second
)

type Worker struct {
	queue       Queue
	queueName   string
	log         *logger.Logger
	handlers    map[string]Handler
	semaphore   chan struct{}
	pollTimeout time.Duration
	jobTimeout  time.Duration
	inflight    sync.WaitGroup
}

func NewWorker(q Queue, queueName string, cfg config.Worker, log *logger.Logger) *Worker {
	concurrency := cfg.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	if queueName == "" {
		queueName = DefaultQueue
	}
	return &Worker{
		queue:       q,
		queueName:   queueName,
		log:         log,
		handlers:    make(map[string]Handler),
		semaphore:   make(chan struct{}, concurrency),
		pollTimeout: pollTimeout,
		jobTimeout:  cfg.JobTimeout,
	}
}

func (w *Worker) Register(name string, handler Handler) {
	w.handlers[name] = handler
}

// Run pulls jobs until ctx is done, then waits for running jobs to finish.
func (w *Worker) Run(ctx context.Context) error {
	w.log.InfoContext(ctx, "Worker started",
		logger.StringField("queue", w.queueName),
		logger.IntField("max_concurrency", cap(w.semaphore)),
	)
	defer w.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker stopping", logger.StringField("queue", w.queueName))
			return nil
		case w.semaphore <- struct{}{}:
		}

		job, err := w.queue.Dequeue(ctx, w.queueName, w.pollTimeout)
		if err != nil {
			<-w.semaphore
			if errors.Is(err, ErrEmpty) || ctx.Err() != nil {
				continue
			}
			w.log.ErrorContext(ctx, "Failed to dequeue job", logger.StringField("queue", w.queueName), logger.ErrorField(err))
			select {
			case <-ctx.Done():
			case <-time.After(errorBackoff):
			}
			continue
		}

		w.inflight.Add(1)
		utils.GoSafe(func() {
			defer func() {
				<-w.semaphore
				w.inflight.Done()
			}()
			w.process(job)
		})
	}
}

func (w *Worker) process(job *Job) {
	ctx := context.Background()
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	jobFields := []zap.Field{
		logger.StringField("job_id", job.ID),
		logger.StringField("job_name", job.Name),
		logger.StringField("queue", job.Queue),
	}
	log := w.log.With(jobFields...)
	ctx = logger.NewContext(ctx, jobFields...)

	log.Debug("Executing job",
		logger.StringField("title", job.Title),
		logger.IntField("active_concurrency", len(w.semaphore)),
		logger.IntField("max_concurrency", cap(w.semaphore)),
	)

	handler, ok := w.handlers[job.Name]
	var err error
	if !ok {
		err = fmt.Errorf("no handler registered for job %q", job.Name)
	} else {
		err = utils.SafeCall(func() error { return handler(ctx, job) })
	}

	if err == nil {
		log.Debug("Job completed")
		return
	}

	w.log.ErrorContextWithAlert(ctx, "Job failed", logger.ErrorField(err))
	failCtx, cancelFail := context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
	defer cancelFail()
	if failErr := w.queue.Fail(failCtx, job, err); failErr != nil {
		w.log.ErrorContext(ctx, "Failed to record failed job", logger.ErrorField(failErr))
	}
}
