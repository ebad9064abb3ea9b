// This file implements the Repository type, CRUD for models whose table is
// known at compile time.
//
// Repository provides type-safe database operations for model T:
//   - Create (Create, with BeforeCreate/AfterCreate hooks and key backfill)
//   - Read (FindOne, Find)
//   - Delete (Delete)
//   - Schema setup (EnsureTable)
package tablestore

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/arllen133/tablestore/clause"
)

// Repository manages CRUD operations for model T.
//
// Usage example:
//
//	repo := tablestore.NewRepository[User](session, UserSchema{})
//
//	// Create record
//	u := &User{Name: "Ann", Email: "ann@example.com", Age: 30}
//	if err := repo.Create(ctx, u); err != nil {
//	    return err
//	}
//	fmt.Println("Created user ID:", u.ID) // auto-increment ID backfilled
//
//	// Query record
//	u, err := repo.FindOne(ctx, 1)
//
//	// Delete record
//	n, err := repo.Delete(ctx, 1)
type Repository[T any] struct {
	session *Session
	schema  Schema[T]
}

// NewRepository creates a Repository for T on session.
func NewRepository[T any](session *Session, schema Schema[T]) *Repository[T] {
	return &Repository[T]{session: session, schema: schema}
}

// EnsureTable creates the model's table if it does not exist yet.
func (r *Repository[T]) EnsureTable(ctx context.Context) error {
	_, err := r.session.Exec(ctx, CreateTableSQL(r.session.dialect, r.schema.Table()))
	return err
}

// Create inserts a new record into the database.
//
// Operation flow:
//  1. Trigger BeforeCreate hook (if model implements BeforeCreateInterface)
//  2. Extract insert data from model (via schema.InsertRow)
//  3. Execute INSERT, reading the generated key with RETURNING or LastInsertId per dialect
//  4. Backfill the key into model
//  5. Trigger AfterCreate hook (if model implements AfterCreateInterface)
func (r *Repository[T]) Create(ctx context.Context, model *T) error {
	if err := beforeCreate(ctx, model); err != nil {
		return err
	}

	cols, vals := r.schema.InsertRow(model)
	pk := r.schema.PK()
	builder := sq.Insert(r.schema.Table().Name.Quoted()).
		Columns(cols...).
		Values(vals...).
		PlaceholderFormat(r.session.dialect.PlaceholderFormat())

	if r.session.dialect.ReturningID() {
		query, args, err := builder.Suffix("RETURNING " + pk.ColumnName()).ToSql()
		if err != nil {
			return err
		}
		var id int64
		if err := r.session.Get(ctx, &id, query, args...); err != nil {
			return err
		}
		r.schema.SetPK(model, id)
	} else {
		query, args, err := builder.ToSql()
		if err != nil {
			return err
		}
		result, err := r.session.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		id, err := result.LastInsertId()
		if err != nil {
			return wrapError("insert", err)
		}
		r.schema.SetPK(model, id)
	}

	return afterCreate(ctx, model)
}

// FindOne queries a single record by primary key.
// If record not found, returns ErrNotFound.
//
// Example:
//
//	user, err := repo.FindOne(ctx, 123)
//	if errors.Is(err, tablestore.ErrNotFound) {
//	    // User not found
//	}
func (r *Repository[T]) FindOne(ctx context.Context, id int64) (*T, error) {
	where, args, _ := clause.Eq{Column: r.schema.PK(), Value: id}.Build()
	query, args, err := r.selectBuilder().
		Where(sq.Expr(where, args...)).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	model := new(T)
	if err := r.session.Get(ctx, model, query, args...); err != nil {
		return nil, err
	}
	return model, nil
}

// Find returns every record ordered by primary key, i.e. insertion order.
// An empty table yields an empty, non-nil slice.
func (r *Repository[T]) Find(ctx context.Context) ([]T, error) {
	orderBy, _, _ := clause.OrderByColumn{Column: r.schema.PK()}.Build()
	query, args, err := r.selectBuilder().OrderBy(orderBy).ToSql()
	if err != nil {
		return nil, err
	}

	models := []T{}
	if err := r.session.Select(ctx, &models, query, args...); err != nil {
		return nil, err
	}
	return models, nil
}

// Delete deletes a record by primary key and returns the number of rows
// removed. Deleting a missing record is not an error.
func (r *Repository[T]) Delete(ctx context.Context, id int64) (int64, error) {
	where, args, _ := clause.Eq{Column: r.schema.PK(), Value: id}.Build()
	query, args, err := sq.Delete(r.schema.Table().Name.Quoted()).
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

func (r *Repository[T]) selectBuilder() sq.SelectBuilder {
	return sq.Select(r.schema.SelectColumns()...).
		From(r.schema.Table().Name.Quoted()).
		PlaceholderFormat(r.session.dialect.PlaceholderFormat())
}
