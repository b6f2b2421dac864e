package service

import (
	"catalog-validation/config"
	"catalog-validation/internal/contract"
	"catalog-validation/internal/engine"
	"catalog-validation/internal/queue"
	"catalog-validation/internal/repository"
	"catalog-validation/pkg/logger"
)

type Service struct {
	StatusHelper      StatusHelper
	JobExecutor       JobExecutor
	Dispatcher        Dispatcher
	ValidationService ValidationService
	ResourceEvents    ResourceEvents
	ReportService     ReportService
	Reaper            Reaper
	Plugins           *PluginRegistry
}

func NewService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	validationEngine engine.Engine,
	q queue.Queue,
	plugins ...contract.DataValidation,
) *Service {
	pluginRegistry := NewPluginRegistry(log, plugins...)
	statusHelper := NewStatusHelper(log, repo.ValidationRepo, repo.UnitOfWork)
	jobExecutor := NewJobExecutor(cfg, log, statusHelper, repo.CatalogRepo, repo.StorageRepo, repo.SchemaRepo, validationEngine, pluginRegistry)
	dispatcher := NewDispatcher(cfg, log, q, jobExecutor, statusHelper)
	validationService := NewValidationService(cfg, log, repo.CatalogRepo, statusHelper, jobExecutor, dispatcher)
	resourceEvents := NewResourceEvents(cfg, log, pluginRegistry, dispatcher, statusHelper)
	reportService := NewReportService(cfg, log, repo.CatalogRepo, statusHelper)
	reaper := NewReaper(cfg, log, repo.ValidationRepo, repo.CatalogRepo, statusHelper)

	return &Service{
		StatusHelper:      statusHelper,
		JobExecutor:       jobExecutor,
		Dispatcher:        dispatcher,
		ValidationService: validationService,
		ResourceEvents:    resourceEvents,
		ReportService:     reportService,
		Reaper:            reaper,
		Plugins:           pluginRegistry,
	}
}
