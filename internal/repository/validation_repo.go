package repository

import (
	"catalog-validation/internal/model"
	"catalog-validation/pkg/utils"
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// LiveResourceIndex keeps at most one created/running record per resource.
const LiveResourceIndex = "idx_validation_live_resource"

const createLiveResourceIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ` + LiveResourceIndex +
	` ON validation (resource_id) WHERE status IN ('created', 'running')`

type ValidationRepository interface {
	Create(ctx context.Context, validation *model.Validation, opts ...utils.DBOption) error
	FindByResourceID(ctx context.Context, resourceID string, opts ...utils.DBOption) (*model.Validation, error)
	FindByID(ctx context.Context, id string, opts ...utils.DBOption) (*model.Validation, error)
	// Transition applies updates to the record only while its status is one of from.
	// It returns the number of rows changed, zero meaning the guard did not match.
	Transition(ctx context.Context, id string, from []model.ValidationStatus, updates map[string]interface{}, opts ...utils.DBOption) (int64, error)
	Delete(ctx context.Context, validation *model.Validation, opts ...utils.DBOption) error
	DeleteByResourceID(ctx context.Context, resourceID string, opts ...utils.DBOption) (int64, error)
	FindStale(ctx context.Context, status model.ValidationStatus, createdBefore time.Time, limit int, opts ...utils.DBOption) ([]model.Validation, error)
	CountByStatus(ctx context.Context, opts ...utils.DBOption) (map[model.ValidationStatus]int64, error)
}

type validationRepository struct {
	db *gorm.DB
}

func NewValidationRepository(db *gorm.DB) ValidationRepository {
	return &validationRepository{db: db}
}

// AutoMigrate creates the validation table and its indexes when they do not exist.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Validation{}); err != nil {
		return fmt.Errorf("failed to migrate validation table: %w", err)
	}
	if err := db.Exec(createLiveResourceIndex).Error; err != nil {
		return fmt.Errorf("failed to create %s: %w", LiveResourceIndex, err)
	}
	return nil
}

// TablesExist reports whether the validation table is present.
func TablesExist(db *gorm.DB) bool {
	return db.Migrator().HasTable(&model.Validation{})
}

func (r *validationRepository) Create(ctx context.Context, validation *model.Validation, opts ...utils.DBOption) error {
	return translateError(utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(validation).Error)
}

func (r *validationRepository) FindByResourceID(ctx context.Context, resourceID string, opts ...utils.DBOption) (*model.Validation, error) {
	var validation model.Validation
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("resource_id = ?", resourceID).
		Order("created DESC").
		First(&validation).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &validation, nil
}

func (r *validationRepository) FindByID(ctx context.Context, id string, opts ...utils.DBOption) (*model.Validation, error) {
	var validation model.Validation
	if err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Where("id = ?", id).First(&validation).Error; err != nil {
		return nil, translateError(err)
	}
	return &validation, nil
}

func (r *validationRepository) Transition(ctx context.Context, id string, from []model.ValidationStatus, updates map[string]interface{}, opts ...utils.DBOption) (int64, error) {
	result := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.Validation{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return 0, translateError(result.Error)
	}
	return result.RowsAffected, nil
}

func (r *validationRepository) Delete(ctx context.Context, validation *model.Validation, opts ...utils.DBOption) error {
	result := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Where("id = ?", validation.ID).Delete(&model.Validation{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *validationRepository) DeleteByResourceID(ctx context.Context, resourceID string, opts ...utils.DBOption) (int64, error) {
	result := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Where("resource_id = ?", resourceID).Delete(&model.Validation{})
	return result.RowsAffected, result.Error
}

func (r *validationRepository) FindStale(ctx context.Context, status model.ValidationStatus, createdBefore time.Time, limit int, opts ...utils.DBOption) ([]model.Validation, error) {
	var validations []model.Validation
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("status = ? AND created < ?", status, createdBefore).
		Order("created ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if err := db.Find(&validations).Error; err != nil {
		return nil, err
	}
	return validations, nil
}

func (r *validationRepository) CountByStatus(ctx context.Context, opts ...utils.DBOption) (map[model.ValidationStatus]int64, error) {
	var rows []struct {
		Status model.ValidationStatus
		Total  int64
	}
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.Validation{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[model.ValidationStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}
