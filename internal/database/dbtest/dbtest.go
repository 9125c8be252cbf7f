// Package dbtest opens migrated SQLite databases for tests.
package dbtest

import (
	"os"
	"path/filepath"
	"testing"

	"proctorexam/internal/database"
)

// New returns a migrated SQLite database in a temporary directory. Tests
// using it are skipped in -short mode.
func New(t testing.TB) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := database.Initialize(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.RunMigrations(MigrationsPath(t)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// MigrationsPath locates the repository's migrations directory by walking
// up from the working directory to go.mod.
func MigrationsPath(t testing.TB) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "migrations")
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("go.mod not found above working directory")
		}
		dir = parent
	}
}
