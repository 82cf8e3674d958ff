package database

import (
	"fmt"

	"medstock-backend/internal/clock"
	"medstock-backend/internal/config"
	"medstock-backend/internal/logger"
	"medstock-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init opens the Postgres connection from cfg and migrates every table.
func Init(cfg *config.Config, clk clock.Clock, log *logger.Logger) error {
	db, err := Open(postgres.Open(cfg.DatabaseDSN), clk, log)
	if err != nil {
		return err
	}
	DB = db
	log.Info("Database connected and migrated")
	return nil
}

// Open is shared by production and tests so both run the same migration.
func Open(dialector gorm.Dialector, clk clock.Clock, log *logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		NowFunc: clk.Now,
		Logger:  gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		log.Error("Auto migration failed", "error", err)
		return nil, fmt.Errorf("auto migrating: %w", err)
	}
	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Client{},
		&models.MedicationCourse{},
		&models.AlertState{},
		&models.RestockLog{},
		&models.AuditLog{},
		&models.MedicationOrder{},
	)
}
