package tablestore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arllen133/tablestore/clause"
)

// ColumnType is a storage type from the allow-list accepted for dynamic columns.
type ColumnType string

const (
	TypeText    ColumnType = "TEXT"
	TypeInteger ColumnType = "INTEGER"
	TypeReal    ColumnType = "REAL"
	TypeNumeric ColumnType = "NUMERIC"
)

var columnTypeAliases = map[string]ColumnType{
	"TEXT":    TypeText,
	"STRING":  TypeText,
	"VARCHAR": TypeText,
	"INTEGER": TypeInteger,
	"INT":     TypeInteger,
	"BIGINT":  TypeInteger,
	"REAL":    TypeReal,
	"FLOAT":   TypeReal,
	"DOUBLE":  TypeReal,
	"NUMERIC": TypeNumeric,
}

// ParseColumnType resolves a declared type token, case-insensitively.
func ParseColumnType(s string) (ColumnType, error) {
	if t, ok := columnTypeAliases[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q (allowed: TEXT, INTEGER, REAL, NUMERIC)", ErrInvalidColumnType, s)
}

// ColumnSpec is an unvalidated column declaration as supplied by a caller.
type ColumnSpec struct {
	Name string
	Type string
}

// ColumnSpecs is an ordered list of column declarations. Its JSON form is an
// object mapping column name to type whose key order is preserved.
type ColumnSpecs []ColumnSpec

// UnmarshalJSON implements json.Unmarshaler. Duplicate names are rejected.
func (cs *ColumnSpecs) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*cs = nil
		return nil
	}
	specs := ColumnSpecs{}
	seen := make(map[string]bool)
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		if seen[key] {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidIdentifier, key)
		}
		seen[key] = true
		var typ string
		if err := json.Unmarshal(raw, &typ); err != nil {
			return fmt.Errorf("%w: column %q: type must be a string", ErrInvalidColumnType, key)
		}
		specs = append(specs, ColumnSpec{Name: key, Type: typ})
		return nil
	})
	if err != nil {
		return err
	}
	*cs = specs
	return nil
}

// MarshalJSON implements json.Marshaler, keeping declaration order.
func (cs ColumnSpecs) MarshalJSON() ([]byte, error) {
	row := make(Row, len(cs))
	for i, c := range cs {
		row[i] = Cell{Column: c.Name, Value: Text(c.Type)}
	}
	return row.MarshalJSON()
}

// ColumnDef is a validated column declaration.
type ColumnDef struct {
	Name clause.Ident
	Type ColumnType
}

// TableDef is a validated table declaration. Every column is NOT NULL and
// an auto-incrementing "id" primary key is always prepended.
type TableDef struct {
	Name    clause.Ident
	Columns []ColumnDef
}

var idColumn = clause.MustIdent("id")

// NewTableDef validates a table name and its column declarations.
// It fails on the first invalid name or type, so nothing is created from a
// partially valid declaration. A column named "id" collides with the
// implicit key and is rejected.
func NewTableDef(name string, cols ColumnSpecs) (TableDef, error) {
	table, err := clause.ParseIdent(name)
	if err != nil {
		return TableDef{}, fmt.Errorf("table name: %w", err)
	}

	def := TableDef{Name: table, Columns: make([]ColumnDef, 0, len(cols))}
	for _, c := range cols {
		col, err := clause.ParseIdent(c.Name)
		if err != nil {
			return TableDef{}, fmt.Errorf("column name: %w", err)
		}
		if col.EqualFold(idColumn) {
			return TableDef{}, fmt.Errorf("%w: column %q collides with the implicit primary key", ErrInvalidIdentifier, c.Name)
		}
		for _, prev := range def.Columns {
			if prev.Name.EqualFold(col) {
				return TableDef{}, fmt.Errorf("%w: duplicate column %q", ErrInvalidIdentifier, c.Name)
			}
		}
		typ, err := ParseColumnType(c.Type)
		if err != nil {
			return TableDef{}, fmt.Errorf("column %q: %w", c.Name, err)
		}
		def.Columns = append(def.Columns, ColumnDef{Name: col, Type: typ})
	}
	return def, nil
}

// CreateTableSQL renders def as a CREATE TABLE IF NOT EXISTS statement.
// Output is deterministic and keeps column order.
//
// Example (SQLite):
//
//	CREATE TABLE IF NOT EXISTS "orders" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "item" TEXT NOT NULL, "qty" INTEGER NOT NULL)
func CreateTableSQL(d Dialect, def TableDef) string {
	defs := make([]string, 0, len(def.Columns)+1)
	defs = append(defs, d.AutoIncrementKey(idColumn.Quoted()))
	for _, c := range def.Columns {
		defs = append(defs, c.Name.Quoted()+" "+d.StorageType(c.Type)+" NOT NULL")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", def.Name.Quoted(), strings.Join(defs, ", "))
}
