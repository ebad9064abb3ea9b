package tablestore

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/arllen133/tablestore/clause"
)

// ColumnPolicy decides what Insert does with row keys the target table does
// not declare.
type ColumnPolicy int

const (
	// ColumnPolicyLenient passes every validated key through and lets the
	// store reject unknown columns.
	ColumnPolicyLenient ColumnPolicy = iota
	// ColumnPolicyStrict looks up the table's columns first and fails with
	// ErrUnknownColumn before any write.
	ColumnPolicyStrict
)

// RowStoreOption configures a RowStore.
type RowStoreOption func(*RowStore)

// WithColumnPolicy sets the unknown-column policy. The default is ColumnPolicyLenient.
func WithColumnPolicy(p ColumnPolicy) RowStoreOption {
	return func(r *RowStore) {
		r.policy = p
	}
}

// RowStore performs insert, full scan and delete by id against tables named
// at request time.
//
// Every table and column name is validated into a clause.Ident before it
// reaches statement text; values are always bound parameters.
//
// Creating a table and writing to it are not isolated from each other beyond
// the session lock: a concurrent CreateTable and Insert on the same name run
// in whichever order they acquire it.
type RowStore struct {
	session *Session
	policy  ColumnPolicy
}

// NewRowStore creates a RowStore on session.
func NewRowStore(session *Session, opts ...RowStoreOption) *RowStore {
	r := &RowStore{session: session}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateTable creates name with the given columns unless it already exists.
//
// An existing table is left untouched, including when cols differ from its
// declared columns; the existing schema is kept and no error is returned.
func (r *RowStore) CreateTable(ctx context.Context, name string, cols ColumnSpecs) (TableDef, error) {
	def, err := NewTableDef(name, cols)
	if err != nil {
		return TableDef{}, err
	}
	if _, err := r.session.Exec(ctx, CreateTableSQL(r.session.dialect, def)); err != nil {
		return TableDef{}, err
	}
	return def, nil
}

// Insert writes row into table and returns it as supplied.
//
// The table name and every key of row are validated before a statement is
// built; any failure returns ErrInvalidIdentifier with nothing written.
// An empty row inserts a row of defaults.
func (r *RowStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	name, err := clause.ParseIdent(table)
	if err != nil {
		return nil, fmt.Errorf("table name: %w", err)
	}

	idents := make([]clause.Ident, 0, len(row))
	cols := make([]string, len(row))
	vals := make([]any, len(row))
	for i, cell := range row {
		col, err := clause.ParseIdent(cell.Column)
		if err != nil {
			return nil, fmt.Errorf("column name: %w", err)
		}
		for _, prev := range idents {
			if prev.EqualFold(col) {
				return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidIdentifier, cell.Column)
			}
		}
		idents = append(idents, col)
		cols[i] = col.Quoted()
		vals[i] = cell.Value
	}

	if r.policy == ColumnPolicyStrict {
		if err := r.checkColumns(ctx, name, row); err != nil {
			return nil, err
		}
	}

	var query string
	var args []any
	if len(row) == 0 {
		query = "INSERT INTO " + name.Quoted() + " DEFAULT VALUES"
	} else {
		query, args, err = sq.Insert(name.Quoted()).
			Columns(cols...).
			Values(vals...).
			PlaceholderFormat(r.session.dialect.PlaceholderFormat()).
			ToSql()
		if err != nil {
			return nil, err
		}
	}

	if _, err := r.session.Exec(ctx, query, args...); err != nil {
		return nil, err
	}
	return row, nil
}

// checkColumns fails with ErrUnknownColumn if row names a column table lacks.
// Names match case-insensitively on SQLite and exactly on PostgreSQL, where
// quoted identifiers are case-sensitive.
func (r *RowStore) checkColumns(ctx context.Context, table clause.Ident, row Row) error {
	declared, err := r.columns(ctx, table)
	if err != nil {
		return err
	}
	key := strings.ToLower
	if _, ok := r.session.dialect.(*PostgreSQLDialect); ok {
		key = func(s string) string { return s }
	}
	known := make(map[string]bool, len(declared))
	for _, c := range declared {
		known[key(c)] = true
	}
	for _, cell := range row {
		if !known[key(cell.Column)] {
			return fmt.Errorf("%w: %q is not a column of %s", ErrUnknownColumn, cell.Column, table)
		}
	}
	return nil
}

// SelectAll returns every row of table ordered by id, cells in column
// declaration order. An empty table yields an empty, non-nil slice; a missing
// table fails with ErrTableNotFound.
func (r *RowStore) SelectAll(ctx context.Context, table string) ([]Row, error) {
	name, err := clause.ParseIdent(table)
	if err != nil {
		return nil, fmt.Errorf("table name: %w", err)
	}

	orderBy, _, _ := clause.OrderByColumn{Column: clause.Col(idColumn)}.Build()
	query, args, err := sq.Select("*").
		From(name.Quoted()).
		OrderBy(orderBy).
		PlaceholderFormat(r.session.dialect.PlaceholderFormat()).
		ToSql()
	if err != nil {
		return nil, err
	}

	out := []Row{}
	err = r.session.QueryRows(ctx, query, args, func(rows *sqlx.Rows) error {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		for rows.Next() {
			vals := make([]Value, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			row := make(Row, len(cols))
			for i, c := range cols {
				row[i] = Cell{Column: c, Value: vals[i]}
			}
			out = append(out, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteByID deletes the row of table whose id is id and returns the number
// of rows removed. Deleting an id that does not exist succeeds with zero.
func (r *RowStore) DeleteByID(ctx context.Context, table string, id int64) (int64, error) {
	name, err := clause.ParseIdent(table)
	if err != nil {
		return 0, fmt.Errorf("table name: %w", err)
	}

	where, args, _ := clause.Eq{Column: clause.Col(idColumn), Value: id}.Build()
	query, args, err := sq.Delete(name.Quoted()).
		Where(sq.Expr(where, args...)).
		PlaceholderFormat(r.session.dialect.PlaceholderFormat()).
		ToSql()
	if err != nil {
		return 0, err
	}

	result, err := r.session.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, wrapError("delete", err)
	}
	return n, nil
}

// Columns returns the column names of table in declaration order.
func (r *RowStore) Columns(ctx context.Context, table string) ([]string, error) {
	name, err := clause.ParseIdent(table)
	if err != nil {
		return nil, fmt.Errorf("table name: %w", err)
	}
	return r.columns(ctx, name)
}

func (r *RowStore) columns(ctx context.Context, table clause.Ident) ([]string, error) {
	query, args, err := sq.Select("*").
		From(table.Quoted()).
		Where("1 = 0").
		PlaceholderFormat(r.session.dialect.PlaceholderFormat()).
		ToSql()
	if err != nil {
		return nil, err
	}

	var cols []string
	err = r.session.QueryRows(ctx, query, args, func(rows *sqlx.Rows) error {
		var err error
		cols, err = rows.Columns()
		return err
	})
	return cols, err
}
