package testutil

import (
	"database/sql"
	"testing"

	"pricewise-backend/pkg/migrations"
)

// OpenInMemoryDB opens a fresh in-memory sqlite database with schema applied,
// it is closed when the test ends.
func OpenInMemoryDB(t testing.TB, schema string) *sql.DB {
	t.Helper()

	database, err := migrations.OpenDB(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		database.Close()
	})

	err = migrations.Migrate(database, schema)
	if err != nil {
		t.Fatal(err)
	}
	return database
}
