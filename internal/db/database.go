package db

import (
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/scenarr/scenarr/internal/logging"
)

// Initialize creates and configures the database connection
func Initialize(dbPath string, logger zerolog.Logger) (*gorm.DB, error) {
	// SQLite with WAL mode for concurrent reads/writes
	db, err := gorm.Open(sqlite.Open(dbPath+"?_journal_mode=WAL&_busy_timeout=5000"), &gorm.Config{
		Logger: logging.NewGormLogger(logger),
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs all database migrations
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Scene{},
		&Subscription{},
		&QualityProfile{},
		&QueueItem{},
	)
}
