// Package testutil holds helpers shared by package tests.
package testutil

import (
	"catalog-validation/config"
	"catalog-validation/internal/repository"
	"catalog-validation/pkg/database"
	"catalog-validation/pkg/logger"
	"path/filepath"
	"testing"

	"gorm.io/gorm"
)

// NewSQLiteDB opens a migrated sqlite database in a temp dir, closed with the test.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.NewDB(config.Database{
		Driver:   database.DriverSQLite,
		Path:     filepath.Join(t.TempDir(), "validation.db"),
		LogLevel: "Silent",
	}, logger.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := repository.AutoMigrate(db.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db.DB
}
