package tablestore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/arllen133/tablestore/clause"
)

// Error kinds. Every error returned by this package matches at least one of
// them with errors.Is. ErrTableNotFound and ErrConnLost refine ErrStore and
// match it as well; the remaining kinds are disjoint.
var (
	// ErrInvalidIdentifier indicates a table or column name failed validation.
	// No statement was issued.
	ErrInvalidIdentifier = clause.ErrInvalidIdentifier

	// ErrInvalidColumnType indicates a declared column type outside the allow-list.
	ErrInvalidColumnType = errors.New("tablestore: invalid column type")

	// ErrInvalidValue indicates a cell value that is not null, integer, real or text.
	ErrInvalidValue = errors.New("tablestore: invalid value")

	// ErrUnknownColumn indicates a row references a column the table does not
	// declare. Only returned under ColumnPolicyStrict.
	ErrUnknownColumn = errors.New("tablestore: unknown column")

	// ErrNotFound indicates that no record was found.
	//
	//	user, err := users.GetUser(ctx, 123)
	//	if errors.Is(err, tablestore.ErrNotFound) {
	//	    // 404
	//	}
	ErrNotFound = errors.New("tablestore: record not found")

	// ErrConstraintViolation indicates the store rejected a write because of a
	// NOT NULL, UNIQUE or similar constraint, or a required field was empty.
	ErrConstraintViolation = errors.New("tablestore: constraint violation")

	// ErrStore covers every other store-level failure.
	ErrStore = errors.New("tablestore: store error")

	// ErrTableNotFound is the ErrStore kind for a statement against a missing table.
	ErrTableNotFound = fmt.Errorf("%w: no such table", ErrStore)

	// ErrConnLost is the ErrStore kind for a dead connection. The session does
	// not reconnect; callers should treat it as fatal.
	ErrConnLost = fmt.Errorf("%w: connection lost", ErrStore)
)

// StoreError wraps a failure raised while executing a statement.
// It matches both its Kind and the underlying driver error.
type StoreError struct {
	Op   string // statement verb, e.g. "insert"
	Kind error  // one of the package error kinds
	Err  error  // driver error, message preserved for diagnostics
}

func (e *StoreError) Error() string {
	if e.Op == "" {
		return "tablestore: " + e.Err.Error()
	}
	return fmt.Sprintf("tablestore: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// wrapError classifies err and wraps it into a *StoreError.
// Errors that already carry a kind are returned unchanged.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Kind: classify(err), Err: err}
}

func classify(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return ErrConnLost
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrStore
	}

	// mattn/go-sqlite3
	var mattnErr sqlite3.Error
	if errors.As(err, &mattnErr) && mattnErr.Code == sqlite3.ErrConstraint {
		return ErrConstraintViolation
	}

	// modernc.org/sqlite reports extended codes; the low byte is the primary code.
	var moderncErr *sqlite.Error
	if errors.As(err, &moderncErr) && moderncErr.Code()&0xff == sqlite3lib.SQLITE_CONSTRAINT {
		return ErrConstraintViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"):
			return ErrConstraintViolation
		case pgErr.Code == "42P01":
			return ErrTableNotFound
		case pgErr.Code == "42703":
			return ErrUnknownColumn
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"):
		return ErrTableNotFound
	case strings.Contains(msg, "sql: database is closed"):
		return ErrConnLost
	}
	return ErrStore
}
