package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/replymate/replymate/db"
)

// OpenTestDB opens a migrated SQLite database in a per-test temp directory.
// The handle is closed when the test finishes.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "replymate_test.db")
	sqlDB, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := db.Migrate(sqlDB); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return sqlDB
}
