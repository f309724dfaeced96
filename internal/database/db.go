package database

import (
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"sentinel/internal/config"
	"sentinel/internal/models"
)

// InitDB opens the postgres connection and migrates the owned tables.
func InitDB(cfg config.DatabaseConfig) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.ScanJob{},
		&models.ScanResult{},
		&models.OutboxEntry{},
		&models.DeadLetter{},
	); err != nil {
		logrus.Fatalf("Failed to auto-migrate database: %v", err)
	}

	logrus.Info("Database connection established and migrated")
	return db
}
