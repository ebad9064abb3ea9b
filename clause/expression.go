package clause

// Columnar defines an interface for providing a column name.
type Columnar interface {
	ColumnName() string
}

// Column represents a database column with optional table qualifier
type Column struct {
	Table Ident
	Name  Ident
}

// Col builds an unqualified column from a validated name.
func Col(name Ident) Column { return Column{Name: name} }

// ColumnName returns the quoted column name (with table prefix if specified)
func (c Column) ColumnName() string {
	if !c.Table.IsZero() {
		return c.Table.Quoted() + "." + c.Name.Quoted()
	}
	return c.Name.Quoted()
}

var _ Columnar = Column{}

// Expression is the base interface for all SQL expressions
type Expression interface {
	Build() (sql string, args []any, err error)
}

// Eq represents an equality expression (column = value)
type Eq struct {
	Column Column
	Value  any
}

func (e Eq) Build() (string, []any, error) {
	return e.Column.ColumnName() + " = ?", []any{e.Value}, nil
}

// OrderByColumn represents an ORDER BY column
type OrderByColumn struct {
	Column Column
	Desc   bool
}

func (o OrderByColumn) Build() (string, []any, error) {
	sql := o.Column.ColumnName()
	if o.Desc {
		sql += " DESC"
	}
	return sql, nil, nil
}
