package testsupport

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// NewMockDB returns a Postgres-dialect bun.DB backed by sqlmock. Unmet
// expectations fail the test at cleanup.
func NewMockDB(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqldb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sql expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// NewSQLiteDB returns a bun.DB over a private in-memory SQLite database,
// with foreign keys enforced. schema statements run before it is returned.
func NewSQLiteDB(t *testing.T, schema ...string) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", "file::memory:?cache=private&_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	// Each connection to :memory: is a separate database.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to apply schema %q: %v", stmt, err)
		}
	}
	return db
}
