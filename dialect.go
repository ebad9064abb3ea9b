// Package tablestore provides a relational store with a fixed users entity
// and a schema-on-demand table layer.
// This file implements database dialect abstraction to handle SQL differences between databases.
//
// Dialect is the key abstraction for tablestore to support multiple databases, responsible for:
//   - Database identification (SQLite, PostgreSQL)
//   - Placeholder format (? vs $1, $2)
//   - Auto-increment primary key syntax (AUTOINCREMENT vs BIGSERIAL)
//   - Storage type spelling for the column type allow-list
//   - Retrieving generated keys (LastInsertId vs RETURNING)
//
// Currently supported databases:
//   - SQLite 3 through github.com/mattn/go-sqlite3 ("sqlite3") or modernc.org/sqlite ("sqlite")
//   - PostgreSQL 12+ through github.com/jackc/pgx/v5/stdlib ("pgx")
//
// Usage example:
//
//	// SQLite
//	session := tablestore.NewSession(db, tablestore.SQLite)
//
//	// PostgreSQL
//	session := tablestore.NewSession(db, tablestore.PostgreSQL)
package tablestore

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var (
	SQLite     = &SQLiteDialect{}
	PostgreSQL = &PostgreSQLDialect{}
)

// Dialect abstracts database-specific SQL features.
// Different databases have SQL syntax differences, and the Dialect interface provides a unified abstraction layer.
//
// Implementations:
//   - SQLiteDialect: SQLite dialect
//   - PostgreSQLDialect: PostgreSQL dialect
type Dialect interface {
	// Name returns the database type name.
	// Used for logging, metrics collection, and sqlx bind type selection.
	//
	// Returns:
	//   - "sqlite3" for SQLite
	//   - "postgres" for PostgreSQL
	Name() string

	// PlaceholderFormat returns the placeholder format used by the database.
	// Squirrel uses this format to generate parameterized queries.
	//
	// Common formats:
	//   - sq.Question: ? placeholder (SQLite)
	//   - sq.Dollar: $1, $2 placeholders (PostgreSQL)
	PlaceholderFormat() sq.PlaceholderFormat

	// AutoIncrementKey returns the column definition of an auto-incrementing
	// integer primary key named col (already quoted).
	//
	// Example output:
	//   SQLite: `"id" INTEGER PRIMARY KEY AUTOINCREMENT`
	//   PostgreSQL: `"id" BIGSERIAL PRIMARY KEY`
	AutoIncrementKey(col string) string

	// StorageType spells a column type from the allow-list in this dialect.
	StorageType(t ColumnType) string

	// ReturningID reports whether generated keys are read back with a
	// RETURNING clause instead of sql.Result.LastInsertId.
	// PostgreSQL drivers do not implement LastInsertId.
	ReturningID() bool
}

// DialectFor returns the dialect matching a database/sql driver name.
//
// Known drivers:
//   - "sqlite3" (github.com/mattn/go-sqlite3), "sqlite" (modernc.org/sqlite): SQLite
//   - "pgx" (github.com/jackc/pgx/v5/stdlib), "postgres": PostgreSQL
func DialectFor(driverName string) (Dialect, error) {
	switch driverName {
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "pgx", "postgres":
		return PostgreSQL, nil
	default:
		return nil, fmt.Errorf("tablestore: unsupported driver %q", driverName)
	}
}

// SQLiteDialect implements SQLite database dialect.
//
// SQLite features:
//   - Uses ? as placeholder
//   - INTEGER PRIMARY KEY AUTOINCREMENT never reuses ids of deleted rows
//   - Storage classes map 1:1 onto the column type allow-list
//   - sql.Result.LastInsertId returns the generated rowid
//
// Note:
//   - An in-memory database lives only as long as its connection; Session
//     pins the pool to a single connection for that reason
type SQLiteDialect struct{}

// Name returns the SQLite dialect name.
func (d *SQLiteDialect) Name() string { return "sqlite3" }

// PlaceholderFormat returns SQLite's placeholder format (?).
func (d *SQLiteDialect) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.Question
}

// AutoIncrementKey returns SQLite's auto-increment primary key definition.
func (d *SQLiteDialect) AutoIncrementKey(col string) string {
	return col + " INTEGER PRIMARY KEY AUTOINCREMENT"
}

// StorageType returns the SQLite spelling of t, which is t itself.
func (d *SQLiteDialect) StorageType(t ColumnType) string { return string(t) }

// ReturningID reports false: SQLite drivers implement LastInsertId.
func (d *SQLiteDialect) ReturningID() bool { return false }

// PostgreSQLDialect implements PostgreSQL database dialect.
//
// PostgreSQL features:
//   - Uses $1, $2, $3 as placeholders
//   - BIGSERIAL for auto-increment keys
//   - 64-bit integer and double precision storage to match the tagged cell values
//   - Generated keys are read back with RETURNING
type PostgreSQLDialect struct{}

// Name returns the PostgreSQL dialect name.
func (d *PostgreSQLDialect) Name() string { return "postgres" }

// PlaceholderFormat returns PostgreSQL's placeholder format ($1, $2, ...).
func (d *PostgreSQLDialect) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.Dollar
}

// AutoIncrementKey returns PostgreSQL's auto-increment primary key definition.
func (d *PostgreSQLDialect) AutoIncrementKey(col string) string {
	return col + " BIGSERIAL PRIMARY KEY"
}

// StorageType returns the PostgreSQL spelling of t.
func (d *PostgreSQLDialect) StorageType(t ColumnType) string {
	switch t {
	case TypeInteger:
		return "BIGINT"
	case TypeReal:
		return "DOUBLE PRECISION"
	default:
		return string(t)
	}
}

// ReturningID reports true: PostgreSQL needs RETURNING to read generated keys.
func (d *PostgreSQLDialect) ReturningID() bool { return true }
