package service

import (
	"catalog-validation/config"
	"catalog-validation/internal/model"
	"catalog-validation/internal/queue"
	"catalog-validation/pkg/logger"
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	JobRunValidation = "run_validation_job"
	jobArgResourceID = "resource_id"
	defaultJobTTL    = 24 * time.Hour
)

// Dispatcher hands validation to the queue or runs it inline.
type Dispatcher interface {
	// Dispatch validates resource in mode. A synchronous run that does not
	// succeed returns a *ValidationFailedError.
	Dispatch(ctx context.Context, resource *model.Resource, mode string) error
	Enqueue(ctx context.Context, packageID, resourceID string) error
}

type dispatcher struct {
	cfg          *config.Config
	log          *logger.Logger
	queue        queue.Queue
	executor     JobExecutor
	statusHelper StatusHelper
}

func NewDispatcher(cfg *config.Config, log *logger.Logger, q queue.Queue, executor JobExecutor, statusHelper StatusHelper) Dispatcher {
	return &dispatcher{
		cfg:          cfg,
		log:          log,
		queue:        q,
		executor:     executor,
		statusHelper: statusHelper,
	}
}

func (d *dispatcher) Dispatch(ctx context.Context, resource *model.Resource, mode string) error {
	switch mode {
	case config.ModeSync:
		return d.runSync(ctx, resource)
	case config.ModeAsync:
		return d.runAsync(ctx, resource)
	default:
		return fmt.Errorf("unknown validation mode %q", mode)
	}
}

func (d *dispatcher) runAsync(ctx context.Context, resource *model.Resource) error {
	if _, err := d.statusHelper.CreateJob(ctx, resource.ID); err != nil {
		if errors.Is(err, ErrJobAlreadyEnqueued) {
			d.log.InfoContext(ctx, "Validation job already enqueued", logger.ResourceField(resource.ID))
			return nil
		}
		return err
	}
	return d.Enqueue(ctx, resource.PackageID, resource.ID)
}

func (d *dispatcher) runSync(ctx context.Context, resource *model.Resource) error {
	if !resource.HasSchema() {
		if resource.ID == "" {
			return nil
		}
		current, err := d.statusHelper.GetJob(ctx, resource.ID)
		if err != nil || current == nil {
			return err
		}
		if err := d.statusHelper.DeleteJob(ctx, current); err != nil && !errors.Is(err, ErrJobDoesNotExist) {
			return err
		}
		return nil
	}

	outcome := d.executor.Validate(ctx, resource)
	if outcome.Status != model.StatusSuccess {
		return &ValidationFailedError{
			ResourceID: resource.ID,
			Status:     outcome.Status,
			Report:     outcome.Report,
			Payload:    outcome.Error,
		}
	}

	if resource.ID == "" {
		return nil
	}
	if _, err := d.statusHelper.MarkSuccess(ctx, resource.ID, outcome.Report); err != nil {
		return fmt.Errorf("failed to record successful validation: %w", err)
	}
	return nil
}

func (d *dispatcher) Enqueue(ctx context.Context, packageID, resourceID string) error {
	job := &queue.Job{
		Name:       JobRunValidation,
		Queue:      d.cfg.Queue.Name,
		Title:      fmt.Sprintf("%s: package_id: %s resource: %s", JobRunValidation, packageID, resourceID),
		Args:       map[string]string{jobArgResourceID: resourceID},
		TTL:        d.jobTTL(d.cfg.Queue.TTL),
		FailureTTL: d.jobTTL(d.cfg.Queue.FailureTTL),
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue validation of resource %s: %w", resourceID, err)
	}
	d.log.InfoContext(ctx, "Validation job enqueued",
		logger.ResourceField(resourceID),
		logger.StringField("job_id", job.ID),
		logger.StringField("queue", job.Queue),
	)
	return nil
}

func (d *dispatcher) jobTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultJobTTL
	}
	return ttl
}
