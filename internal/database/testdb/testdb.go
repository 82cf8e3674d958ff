// Package testdb opens throwaway in-memory databases for service tests.
package testdb

import (
	"fmt"
	"testing"

	"medstock-backend/internal/clock"
	"medstock-backend/internal/database"
	"medstock-backend/internal/logger"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open returns a migrated sqlite database private to the calling test. A
// single connection keeps every statement on the same in-memory database.
func Open(tb testing.TB, clk clock.Clock) *gorm.DB {
	tb.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := database.Open(sqlite.Open(dsn), clk, logger.NewNop())
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("test db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// Seed inserts rows and fails the test on error.
func Seed(tb testing.TB, db *gorm.DB, rows ...interface{}) {
	tb.Helper()
	for _, r := range rows {
		if err := db.Create(r).Error; err != nil {
			tb.Fatalf("seed %T: %v", r, err)
		}
	}
}
