package tablestore

import (
	"github.com/arllen133/tablestore/clause"
)

// Schema defines how to map a model with a compile-time known table to rows and back.
type Schema[T any] interface {
	// Table metadata
	Table() TableDef

	// Read operations
	SelectColumns() []string

	// Write operations
	InsertRow(*T) ([]string, []any)

	// Primary key
	PK() clause.Column
	SetPK(m *T, val int64)
}
