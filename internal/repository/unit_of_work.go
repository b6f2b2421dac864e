package repository

import (
	"catalog-validation/pkg/utils"
	"context"

	"gorm.io/gorm"
)

// UnitOfWork groups repository calls into one transaction.
type UnitOfWork interface {
	// Run hands fn an option that binds repository calls to the transaction.
	// It commits when fn returns nil and rolls back on an error or a panic.
	Run(ctx context.Context, fn func(opts ...utils.DBOption) error) error
}

type unitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &unitOfWork{
		db: db,
	}
}

func (u *unitOfWork) Run(ctx context.Context, fn func(opts ...utils.DBOption) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(utils.WithTx(tx))
	})
}
