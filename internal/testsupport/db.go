package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/scenarr/scenarr/internal/db"
)

// NewDB opens a migrated sqlite database in a temp directory and closes it on cleanup.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	database, err := db.Initialize(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("db.Initialize: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("db.Migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return database
}
