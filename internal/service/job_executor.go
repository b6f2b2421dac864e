package service

import (
	"catalog-validation/config"
	"catalog-validation/internal/engine"
	"catalog-validation/internal/metrics"
	"catalog-validation/internal/model"
	"catalog-validation/internal/queue"
	"catalog-validation/internal/repository"
	"catalog-validation/pkg/logger"
	"catalog-validation/pkg/utils"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// finishTimeout bounds the writes recording an outcome. They run detached
// from the job context, which may already be past its deadline.
const finishTimeout = 30 * time.Second

// JobInput names the resource to validate. Resource wins over ResourceID.
type JobInput struct {
	ResourceID string
	Resource   *model.Resource
}

// Outcome is the result of validating a resource, before it is recorded.
type Outcome struct {
	Status model.ValidationStatus
	Report *model.Report
	Error  *model.ErrorPayload
}

type JobExecutor interface {
	// Run drives the resource's validation record from created to a terminal
	// status and publishes the result.
	Run(ctx context.Context, input JobInput) error
	// Validate runs the engine and classifies the result. Failures become an
	// error outcome.
	Validate(ctx context.Context, resource *model.Resource) Outcome
	// HandleJob is the queue handler of run_validation_job.
	HandleJob(ctx context.Context, job *queue.Job) error
}

type jobExecutor struct {
	cfg          *config.Config
	log          *logger.Logger
	statusHelper StatusHelper
	catalogRepo  repository.CatalogRepository
	storageRepo  repository.StorageRepository
	schemaRepo   repository.SchemaRepository
	engine       engine.Engine
	plugins      *PluginRegistry
}

func NewJobExecutor(
	cfg *config.Config,
	log *logger.Logger,
	statusHelper StatusHelper,
	catalogRepo repository.CatalogRepository,
	storageRepo repository.StorageRepository,
	schemaRepo repository.SchemaRepository,
	validationEngine engine.Engine,
	plugins *PluginRegistry,
) JobExecutor {
	return &jobExecutor{
		cfg:          cfg,
		log:          log,
		statusHelper: statusHelper,
		catalogRepo:  catalogRepo,
		storageRepo:  storageRepo,
		schemaRepo:   schemaRepo,
		engine:       validationEngine,
		plugins:      plugins,
	}
}

func (e *jobExecutor) HandleJob(ctx context.Context, job *queue.Job) error {
	resourceID := job.Args[jobArgResourceID]
	if resourceID == "" {
		return fmt.Errorf("job %s has no %s", job.ID, jobArgResourceID)
	}
	return e.Run(ctx, JobInput{ResourceID: resourceID})
}

func (e *jobExecutor) Run(ctx context.Context, input JobInput) error {
	start := time.Now()

	resource := input.Resource
	if resource == nil {
		found, err := e.catalogRepo.ResourceShow(ctx, input.ResourceID)
		if errors.Is(err, repository.ErrRecordNotFound) {
			return fmt.Errorf("%w: resource %s", ErrNotFound, input.ResourceID)
		}
		if err != nil {
			return fmt.Errorf("failed to fetch resource %s: %w", input.ResourceID, err)
		}
		resource = found
	}

	log := e.log.With(logger.ResourceField(resource.ID))
	log.InfoContext(ctx, "Validating resource", logger.StringField("format", resource.LowerFormat()))

	validation, err := e.startJob(ctx, resource.ID)
	if errors.Is(err, ErrJobAlreadyRunning) {
		log.WarnContext(ctx, "Won't run enqueued job as job is already running or in invalid state", logger.ErrorField(err))
		metrics.JobsSupersededTotal.Inc()
		return nil
	}
	if err != nil {
		return err
	}

	outcome := e.Validate(ctx, resource)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	update := StatusUpdate{Error: outcome.Error, Record: validation}
	if outcome.Status != model.StatusError {
		update.Report = outcome.Report
	}
	validation, err = e.statusHelper.UpdateJobStatus(ctx, resource.ID, outcome.Status, update)
	if errors.Is(err, ErrInvalidTransition) {
		log.WarnContext(ctx, "Discarding validation result of a superseded run",
			logger.StringField("status", string(outcome.Status)),
			logger.ErrorField(err),
		)
		metrics.JobsSupersededTotal.Inc()
		return nil
	}
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	metrics.JobsTotal.WithLabelValues(string(validation.Status)).Inc()
	metrics.JobDurationSeconds.WithLabelValues(string(validation.Status)).Observe(elapsed.Seconds())
	log.InfoContext(ctx, "Validation finished",
		logger.StringField("job_id", validation.ID),
		logger.StringField("status", string(validation.Status)),
		logger.DurationField("duration", elapsed),
	)

	if err := e.catalogRepo.ResourcePatch(ctx, model.ResourcePatch{
		ID:                  resource.ID,
		ValidationStatus:    string(validation.Status),
		ValidationTimestamp: utils.FormatISO(validation.Finished.Time),
	}); err != nil {
		return fmt.Errorf("failed to store validation status on resource %s: %w", resource.ID, err)
	}

	return e.plugins.NotifyReport(ctx, validation.Dictize())
}

// startJob moves the record to running, creating or resetting it first when
// the job was triggered without a live record.
func (e *jobExecutor) startJob(ctx context.Context, resourceID string) (*model.Validation, error) {
	validation, err := e.statusHelper.UpdateJobStatus(ctx, resourceID, model.StatusRunning, StatusUpdate{})
	if err == nil {
		return validation, nil
	}
	if !errors.Is(err, ErrJobDoesNotExist) && !errors.Is(err, ErrInvalidTransition) {
		return nil, err
	}

	validation, err = e.statusHelper.CreateJob(ctx, resourceID)
	if errors.Is(err, ErrJobAlreadyEnqueued) {
		// another trigger created the job in between, let that one run it
		return nil, ErrJobAlreadyRunning
	}
	if err != nil {
		return nil, err
	}
	return e.statusHelper.UpdateJobStatus(ctx, resourceID, model.StatusRunning, StatusUpdate{Record: validation})
}

func (e *jobExecutor) Validate(ctx context.Context, resource *model.Resource) Outcome {
	var (
		outcome Outcome
		source  engine.Source
	)
	err := utils.SafeCall(func() error {
		report, resolved, err := e.validate(ctx, resource)
		source = resolved
		if err != nil {
			return err
		}
		normalizeReport(report, source.Place(), resource.URL)
		status, payload := classifyReport(report)
		outcome = Outcome{Status: status, Report: report, Error: payload}
		return nil
	})
	if err != nil {
		e.log.ErrorContext(ctx, "Validation could not be performed",
			logger.ResourceField(resource.ID),
			logger.ErrorField(err),
		)
		return Outcome{Status: model.StatusError, Error: errorPayload(hideSource(err.Error(), source.Place(), resource.URL))}
	}
	return outcome
}

// validate returns the report together with the source it was produced
// from. The source is set as soon as it is resolved, even on error.
func (e *jobExecutor) validate(ctx context.Context, resource *model.Resource) (*model.Report, engine.Source, error) {
	opts, err := resourceValidationOptions(e.cfg.Validation.DefaultOptions, resource)
	if err != nil {
		return nil, engine.Source{}, err
	}
	opts.Proxy = e.cfg.Validation.DownloadProxy

	source, err := e.resolveSource(ctx, resource)
	if err != nil {
		return nil, engine.Source{}, err
	}
	schema, err := e.resolveSchema(ctx, resource)
	if err != nil {
		return nil, source, err
	}
	format := resource.LowerFormat()

	report, err := e.engine.Validate(ctx, source, format, schema, opts)
	if err != nil {
		return nil, source, fmt.Errorf("validation engine failed: %w", err)
	}

	if report.HasEncodingError() {
		e.log.WarnContext(ctx, "Default encoding failed, attempting ISO-8859-1", logger.ResourceField(resource.ID))
		opts.Encoding = engine.EncodingLatin1
		fallback, err := e.engine.Validate(ctx, source, format, schema, opts)
		if err == nil && !fallback.HasEncodingError() {
			report = fallback
		}
	}
	return report, source, nil
}

func (e *jobExecutor) resolveSource(ctx context.Context, resource *model.Resource) (engine.Source, error) {
	if resource.IsUpload() {
		stored, err := e.storageRepo.Resolve(ctx, resource)
		switch {
		case err == nil && stored.Path != "":
			return engine.Source{Path: stored.Path}, nil
		case err == nil && stored.URL != "":
			return engine.Source{URL: stored.URL}, nil
		case errors.Is(err, repository.ErrUnresolvableUpload):
			e.log.WarnContext(ctx, "Uploaded file not resolvable, using resource url",
				logger.ResourceField(resource.ID),
				logger.ErrorField(err),
			)
		case err != nil:
			return engine.Source{}, err
		}
	}

	if resource.URL == "" {
		return engine.Source{}, fmt.Errorf("resource %s has no url", resource.ID)
	}
	headers, err := e.authHeaders(ctx, resource)
	if err != nil {
		return engine.Source{}, err
	}
	return engine.Source{URL: resource.URL, Headers: headers}, nil
}

// authHeaders returns the Authorization header for files of private
// datasets served by the catalog itself.
func (e *jobExecutor) authHeaders(ctx context.Context, resource *model.Resource) (map[string]string, error) {
	if !e.cfg.Validation.PassAuthHeader {
		return nil, nil
	}
	siteURL := e.cfg.Catalog.SiteURL
	servedByCatalog := resource.IsUpload() || (siteURL != "" && strings.HasPrefix(resource.URL, siteURL))
	if !servedByCatalog {
		return nil, nil
	}

	dataset, err := e.catalogRepo.PackageShow(ctx, resource.PackageID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dataset %s: %w", resource.PackageID, err)
	}
	if !dataset.Private {
		return nil, nil
	}

	value := e.cfg.Validation.PassAuthHeaderValue
	if value == "" {
		value = e.catalogRepo.SiteUserToken()
	}
	if value == "" {
		return nil, nil
	}
	return map[string]string{"Authorization": value}, nil
}

// resolveSchema accepts a schema object, a JSON encoded schema or a schema URL.
func (e *jobExecutor) resolveSchema(ctx context.Context, resource *model.Resource) (map[string]interface{}, error) {
	if len(resource.Schema) == 0 {
		return nil, nil
	}
	var value interface{}
	if err := json.Unmarshal(resource.Schema, &value); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	if encoded, ok := value.(string); ok {
		encoded = strings.TrimSpace(encoded)
		switch {
		case encoded == "":
			return nil, nil
		case strings.HasPrefix(encoded, "http"):
			return e.schemaRepo.Fetch(ctx, encoded)
		}
		if err := json.Unmarshal([]byte(encoded), &value); err != nil {
			return nil, fmt.Errorf("invalid schema: %w", err)
		}
	}

	switch schema := value.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		if len(schema) == 0 {
			return nil, nil
		}
		return schema, nil
	default:
		return nil, fmt.Errorf("schema must be an object, got %T", value)
	}
}
