package service

import (
	"catalog-validation/internal/model"
	"catalog-validation/internal/repository"
	"catalog-validation/pkg/logger"
	"catalog-validation/pkg/utils"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// missRetries bounds how often a lost compare-and-swap is re-evaluated.
const missRetries = 3

// StatusUpdate carries what a transition stores. Record, when given, is the
// caller's copy of the job and is updated in place.
type StatusUpdate struct {
	Report *model.Report
	Error  *model.ErrorPayload
	Record *model.Validation
}

// StatusHelper is the only writer of validation records. Every transition is
// a conditional update, so concurrent callers cannot both win.
type StatusHelper interface {
	CreateJob(ctx context.Context, resourceID string, opts ...utils.DBOption) (*model.Validation, error)
	UpdateJobStatus(ctx context.Context, resourceID string, status model.ValidationStatus, update StatusUpdate, opts ...utils.DBOption) (*model.Validation, error)
	GetJob(ctx context.Context, resourceID string, opts ...utils.DBOption) (*model.Validation, error)
	DeleteJob(ctx context.Context, validation *model.Validation, opts ...utils.DBOption) error
	// DeleteResourceJobs removes every record of a deleted resource.
	DeleteResourceJobs(ctx context.Context, resourceID string, opts ...utils.DBOption) (int64, error)
	// MarkSuccess records a successful run for a resource validated inline.
	MarkSuccess(ctx context.Context, resourceID string, report *model.Report) (*model.Validation, error)
}

type statusHelper struct {
	log            *logger.Logger
	validationRepo repository.ValidationRepository
	unitOfWork     repository.UnitOfWork
}

func NewStatusHelper(log *logger.Logger, validationRepo repository.ValidationRepository, unitOfWork repository.UnitOfWork) StatusHelper {
	return &statusHelper{
		log:            log,
		validationRepo: validationRepo,
		unitOfWork:     unitOfWork,
	}
}

func (s *statusHelper) CreateJob(ctx context.Context, resourceID string, opts ...utils.DBOption) (*model.Validation, error) {
	current, err := s.validationRepo.FindByResourceID(ctx, resourceID, opts...)
	if errors.Is(err, repository.ErrRecordNotFound) {
		validation := &model.Validation{
			ID:         uuid.NewString(),
			ResourceID: resourceID,
			Status:     model.StatusCreated,
			Created:    utils.TimeNowUTC(),
		}
		if err := s.validationRepo.Create(ctx, validation, opts...); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return nil, ErrJobAlreadyEnqueued
			}
			return nil, fmt.Errorf("failed to create validation job: %w", err)
		}
		s.log.DebugContext(ctx, "Validation job created",
			logger.ResourceField(resourceID),
			logger.StringField("job_id", validation.ID),
		)
		return validation, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find validation job: %w", err)
	}

	if current.Status.IsLive() {
		return nil, ErrJobAlreadyEnqueued
	}

	now := utils.TimeNowUTC()
	affected, err := s.validationRepo.Transition(ctx, current.ID, model.TerminalStatuses, map[string]interface{}{
		"status":   model.StatusCreated,
		"created":  now,
		"finished": nil,
		"report":   nil,
		"error":    nil,
	}, opts...)
	if errors.Is(err, repository.ErrDuplicateKey) || (err == nil && affected == 0) {
		return nil, ErrJobAlreadyEnqueued
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reset validation job: %w", err)
	}

	current.Status = model.StatusCreated
	current.Created = now
	current.Finished = sql.NullTime{}
	current.Report = nil
	current.Error = nil
	s.log.DebugContext(ctx, "Validation job reset",
		logger.ResourceField(resourceID),
		logger.StringField("job_id", current.ID),
	)
	return current, nil
}

func (s *statusHelper) UpdateJobStatus(ctx context.Context, resourceID string, status model.ValidationStatus, update StatusUpdate, opts ...utils.DBOption) (*model.Validation, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if status == model.StatusCreated {
		return s.CreateJob(ctx, resourceID, opts...)
	}

	for attempt := 0; attempt < missRetries; attempt++ {
		validation := update.Record
		if validation == nil {
			found, err := s.GetJob(ctx, resourceID, opts...)
			if err != nil {
				return nil, err
			}
			if found == nil {
				return nil, ErrJobDoesNotExist
			}
			validation = found
		}

		var (
			err   error
			moved bool
		)
		if status == model.StatusRunning {
			moved, err = s.start(ctx, validation, opts...)
		} else {
			moved, err = s.finish(ctx, validation, status, update, opts...)
		}
		if err != nil {
			return nil, err
		}
		if moved {
			return validation, nil
		}

		retry, err := s.explainMiss(ctx, resourceID, validation, status, opts...)
		if !retry {
			return nil, err
		}
		update.Record = nil
	}
	return nil, ErrInvalidTransition
}

func (s *statusHelper) start(ctx context.Context, validation *model.Validation, opts ...utils.DBOption) (bool, error) {
	affected, err := s.validationRepo.Transition(ctx, validation.ID,
		[]model.ValidationStatus{model.StatusCreated},
		map[string]interface{}{"status": model.StatusRunning},
		append(opts, utils.WithWhere("created = ?", validation.Created))...,
	)
	if err != nil {
		return false, fmt.Errorf("failed to start validation job: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	validation.Status = model.StatusRunning
	return true, nil
}

func (s *statusHelper) finish(ctx context.Context, validation *model.Validation, status model.ValidationStatus, update StatusUpdate, opts ...utils.DBOption) (bool, error) {
	var report, payload datatypes.JSON
	switch status {
	case model.StatusSuccess, model.StatusFailure:
		if update.Report != nil {
			b, err := json.Marshal(update.Report)
			if err != nil {
				return false, fmt.Errorf("failed to encode report: %w", err)
			}
			report = b
		}
	case model.StatusError:
		errPayload := update.Error
		if errPayload == nil {
			errPayload = &model.ErrorPayload{Message: []string{defaultErrorMessage}}
		}
		b, err := json.Marshal(errPayload)
		if err != nil {
			return false, fmt.Errorf("failed to encode error payload: %w", err)
		}
		payload = b
	}

	finished := utils.TimeNowUTC()
	updates := map[string]interface{}{
		"status":   status,
		"finished": finished,
		"report":   nil,
		"error":    nil,
	}
	if report != nil {
		updates["report"] = report
	}
	if payload != nil {
		updates["error"] = payload
	}

	affected, err := s.validationRepo.Transition(ctx, validation.ID, model.LiveStatuses, updates,
		append(opts, utils.WithWhere("created = ?", validation.Created))...,
	)
	if err != nil {
		return false, fmt.Errorf("failed to finish validation job: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	validation.Status = status
	validation.Finished = sql.NullTime{Time: finished, Valid: true}
	validation.Report = report
	validation.Error = payload
	return true, nil
}

// explainMiss turns a transition that matched no row into the error the
// caller sees. retry is set when the record changed in a way that allows
// the transition to be evaluated again.
func (s *statusHelper) explainMiss(ctx context.Context, resourceID string, expected *model.Validation, status model.ValidationStatus, opts ...utils.DBOption) (retry bool, err error) {
	current, err := s.validationRepo.FindByID(ctx, expected.ID, opts...)
	switch {
	case errors.Is(err, repository.ErrRecordNotFound):
		// deleted since the caller read it, a newer record may exist
		if current, err = s.GetJob(ctx, resourceID, opts...); err != nil {
			return false, err
		}
	case err != nil:
		return false, fmt.Errorf("failed to find validation job: %w", err)
	}
	if current == nil {
		return false, ErrJobDoesNotExist
	}

	superseded := current.ID != expected.ID || !current.Created.Equal(expected.Created)
	switch {
	case status == model.StatusRunning && current.Status == model.StatusRunning:
		return false, ErrJobAlreadyRunning
	case status == model.StatusRunning && current.Status == model.StatusCreated && superseded:
		// the job was reset after the caller read it; start the new run
		return true, nil
	case current.Status.IsTerminal():
		return false, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, status)
	default:
		// a live record of a newer run is not ours to finish
		return false, fmt.Errorf("%w: record of resource %s was superseded", ErrInvalidTransition, resourceID)
	}
}

func (s *statusHelper) GetJob(ctx context.Context, resourceID string, opts ...utils.DBOption) (*model.Validation, error) {
	validation, err := s.validationRepo.FindByResourceID(ctx, resourceID, opts...)
	if errors.Is(err, repository.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find validation job: %w", err)
	}
	return validation, nil
}

func (s *statusHelper) DeleteJob(ctx context.Context, validation *model.Validation, opts ...utils.DBOption) error {
	err := s.validationRepo.Delete(ctx, validation, opts...)
	if errors.Is(err, repository.ErrRecordNotFound) {
		return ErrJobDoesNotExist
	}
	if err != nil {
		return fmt.Errorf("failed to delete validation job: %w", err)
	}
	return nil
}

func (s *statusHelper) DeleteResourceJobs(ctx context.Context, resourceID string, opts ...utils.DBOption) (int64, error) {
	deleted, err := s.validationRepo.DeleteByResourceID(ctx, resourceID, opts...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete validation of resource %s: %w", resourceID, err)
	}
	if deleted > 0 {
		s.log.DebugContext(ctx, "Validation records deleted",
			logger.ResourceField(resourceID),
			logger.IntField("count", int(deleted)),
		)
	}
	return deleted, nil
}

func (s *statusHelper) MarkSuccess(ctx context.Context, resourceID string, report *model.Report) (*model.Validation, error) {
	var validation *model.Validation
	err := s.unitOfWork.Run(ctx, func(opts ...utils.DBOption) error {
		created, err := s.CreateJob(ctx, resourceID, opts...)
		if err != nil {
			return err
		}
		validation, err = s.UpdateJobStatus(ctx, resourceID, model.StatusSuccess, StatusUpdate{Report: report, Record: created}, opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return validation, nil
}
