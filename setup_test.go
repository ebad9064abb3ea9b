package tablestore_test

import (
	"context"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/arllen133/tablestore"
)

// testingPostgres reports whether TEST_DRIVER selects PostgreSQL.
func testingPostgres() bool {
	d, err := tablestore.DialectFor(os.Getenv("TEST_DRIVER"))
	return err == nil && d == tablestore.PostgreSQL
}

// setupSession opens the database named by TEST_DRIVER / TEST_DSN, or a
// fresh in-memory SQLite database when unset.
func setupSession(t *testing.T, opts ...tablestore.SessionOption) *tablestore.Session {
	t.Helper()

	driver := os.Getenv("TEST_DRIVER")
	dsn := os.Getenv("TEST_DSN")

	if driver == "" {
		driver = "sqlite3"
		dsn = ":memory:"
	}

	session, err := tablestore.Open(context.Background(), driver, dsn, opts...)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}
