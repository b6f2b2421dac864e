package service

import (
	"catalog-validation/config"
	"catalog-validation/internal/metrics"
	"catalog-validation/internal/model"
	"catalog-validation/internal/repository"
	"catalog-validation/pkg/logger"
	"catalog-validation/pkg/utils"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const reapedJobMessage = "Validation job timed out"

// Reaper moves jobs that stayed live for too long to error, so records of
// jobs lost by the queue still reach a terminal status.
type Reaper interface {
	// Run reaps on the configured schedule until ctx is done.
	Run(ctx context.Context) error
	Reap(ctx context.Context) (int, error)
}

type reaper struct {
	cfg            *config.Config
	log            *logger.Logger
	cronParser     cron.Parser
	validationRepo repository.ValidationRepository
	catalogRepo    repository.CatalogRepository
	statusHelper   StatusHelper
}

func NewReaper(
	cfg *config.Config,
	log *logger.Logger,
	validationRepo repository.ValidationRepository,
	catalogRepo repository.CatalogRepository,
	statusHelper StatusHelper,
) Reaper {
	return &reaper{
		cfg:            cfg,
		log:            log,
		cronParser:     cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		validationRepo: validationRepo,
		catalogRepo:    catalogRepo,
		statusHelper:   statusHelper,
	}
}

func (r *reaper) Run(ctx context.Context) error {
	if !r.cfg.Reaper.Enabled {
		r.log.InfoContext(ctx, "Reaper disabled")
		<-ctx.Done()
		return nil
	}

	schedule, err := r.cronParser.Parse(r.cfg.Reaper.Schedule)
	if err != nil {
		return fmt.Errorf("failed to parse reaper schedule: %w", err)
	}
	r.log.InfoContext(ctx, "Reaper started", logger.StringField("schedule", r.cfg.Reaper.Schedule))

	for {
		next := schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			r.log.InfoContext(ctx, "Reaper stopped")
			return nil
		case <-timer.C:
		}

		if _, err := r.Reap(ctx); err != nil {
			r.log.ErrorContextWithAlert(ctx, "Failed to reap stale validation jobs", logger.ErrorField(err))
		}
	}
}

func (r *reaper) Reap(ctx context.Context) (int, error) {
	now := utils.TimeNowUTC()
	timeouts := []struct {
		status  model.ValidationStatus
		timeout time.Duration
	}{
		{status: model.StatusRunning, timeout: r.cfg.Reaper.RunningTimeout},
		{status: model.StatusCreated, timeout: r.cfg.Reaper.CreatedTimeout},
	}

	reaped := 0
	for _, t := range timeouts {
		if t.timeout <= 0 {
			continue
		}
		stale, err := r.validationRepo.FindStale(ctx, t.status, now.Add(-t.timeout), r.cfg.Reaper.BatchSize)
		if err != nil {
			return reaped, fmt.Errorf("failed to find stale %s jobs: %w", t.status, err)
		}

		for i := range stale {
			if !utils.ShouldContinue(ctx, r.log) {
				return reaped, ctx.Err()
			}
			ok, err := r.reapOne(ctx, &stale[i])
			if err != nil {
				return reaped, err
			}
			if ok {
				reaped++
				metrics.ReapedTotal.WithLabelValues(string(t.status)).Inc()
			}
		}
	}

	if reaped > 0 {
		r.log.InfoContext(ctx, "Stale validation jobs reaped", logger.IntField("count", reaped))
	}
	r.refreshGauge(ctx)
	return reaped, nil
}

func (r *reaper) refreshGauge(ctx context.Context) {
	counts, err := r.validationRepo.CountByStatus(ctx)
	if err != nil {
		r.log.WarnContext(ctx, "Failed to count validation records", logger.ErrorField(err))
		return
	}
	for _, status := range append(model.LiveStatuses, model.TerminalStatuses...) {
		metrics.Validations.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (r *reaper) reapOne(ctx context.Context, stale *model.Validation) (bool, error) {
	log := r.log.With(
		logger.ResourceField(stale.ResourceID),
		logger.StringField("job_id", stale.ID),
		logger.StringField("status", string(stale.Status)),
	)

	validation, err := r.statusHelper.UpdateJobStatus(ctx, stale.ResourceID, model.StatusError, StatusUpdate{
		Error:  errorPayload(reapedJobMessage),
		Record: stale,
	})
	if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrJobDoesNotExist) {
		// finished or reset since it was listed
		log.DebugContext(ctx, "Stale validation job moved on", logger.ErrorField(err))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	log.WarnContext(ctx, "Validation job timed out")

	if err := r.catalogRepo.ResourcePatch(ctx, model.ResourcePatch{
		ID:                  validation.ResourceID,
		ValidationStatus:    string(validation.Status),
		ValidationTimestamp: utils.FormatISO(validation.Finished.Time),
	}); err != nil {
		log.WarnContext(ctx, "Failed to store timed out status on resource", logger.ErrorField(err))
	}
	return true, nil
}
