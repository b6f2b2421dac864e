package repository

import (
	"catalog-validation/config"
	"catalog-validation/pkg/cache"
	"catalog-validation/pkg/logger"
	"context"

	"gorm.io/gorm"
)

type Repository struct {
	ValidationRepo ValidationRepository
	CatalogRepo    CatalogRepository
	StorageRepo    StorageRepository
	SchemaRepo     SchemaRepository
	UnitOfWork     UnitOfWork
}

func NewRepository(ctx context.Context, cfg *config.Config, inmemoryCache cache.Cache, db *gorm.DB, log *logger.Logger) (*Repository, error) {
	storageRepo, err := NewStorageRepository(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	return &Repository{
		ValidationRepo: NewValidationRepository(db),
		CatalogRepo:    NewCatalogRepository(cfg, log, inmemoryCache),
		StorageRepo:    storageRepo,
		SchemaRepo:     NewSchemaRepository(cfg, inmemoryCache),
		UnitOfWork:     NewUnitOfWork(db),
	}, nil
}
