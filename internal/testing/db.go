// Package testing provides testing utilities and helpers for the sharpe project.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/sharpe/internal/database"
)

// NewTestDB creates a file-backed SQLite database in a per-test temporary
// directory and applies the schema registered for name. The database is
// closed when the test finishes.
//
// Supported schema names:
//   - "runs" - applies runs_schema.sql
//   - "cache" - applies cache_schema.sql (opened with the cache profile)
//   - Unknown names - creates empty database (no schema applied)
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	profile := database.ProfileStandard
	if name == "cache" {
		profile = database.ProfileCache
	}

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	t.Cleanup(func() {
		// Closing twice is harmless; tests may close early to simulate failures
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})

	return db
}
