package testutil

import (
	"path/filepath"
	"testing"

	"save-go/internal/database"
)

// NewTestDatabase creates an in-memory SQLite database with the schema
// applied. It is closed when the test completes, unless a store closed it
// first.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()
	return openDatabase(t, ":memory:")
}

// NewFileDatabase creates a database file in a temp directory and returns
// it with its path, for tests that reopen it or share it between two
// connections.
func NewFileDatabase(t *testing.T) (*database.SQLiteDatabase, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), database.DatabaseFile)
	return openDatabase(t, path), path
}

// OpenDatabase opens another connection to an existing database file.
func OpenDatabase(t *testing.T, path string) *database.SQLiteDatabase {
	t.Helper()
	return openDatabase(t, path)
}

func openDatabase(t *testing.T, path string) *database.SQLiteDatabase {
	t.Helper()
	db, err := database.NewSQLiteDatabase(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
