package tablestore

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/constraints"
)

// Kind tags the storage class held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindReal
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindText:
		return "text"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is one cell of a dynamic row: null, a 64-bit integer, a 64-bit
// float or text. The zero Value is null.
//
// Value implements driver.Valuer and sql.Scanner so it can be bound as a
// statement parameter and scanned from any column, and json.Marshaler /
// json.Unmarshaler for the HTTP surface.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// Null returns the null Value.
func Null() Value { return Value{} }

// Integer returns an integer Value.
func Integer[T constraints.Integer](n T) Value { return Value{kind: KindInteger, i: int64(n)} }

// Real returns a real Value.
func Real[T constraints.Float](f T) Value { return Value{kind: KindReal, f: float64(f)} }

// Text returns a text Value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Kind returns the storage class of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int64 returns the integer held by v.
func (v Value) Int64() (int64, bool) { return v.i, v.kind == KindInteger }

// Float64 returns the real held by v.
func (v Value) Float64() (float64, bool) { return v.f, v.kind == KindReal }

// Str returns the text held by v.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindText }

// Any returns v as a plain Go value: nil, int64, float64 or string.
func (v Value) Any() any {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindReal:
		return v.f
	case KindText:
		return v.s
	default:
		return nil
	}
}

// Equal reports whether v and o hold the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInteger:
		return v.i == o.i
	case KindReal:
		return v.f == o.f
	case KindText:
		return v.s == o.s
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindReal:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return strconv.Quote(v.s)
	default:
		return "NULL"
	}
}

// Value implements driver.Valuer.
func (v Value) Value() (driver.Value, error) {
	return v.Any(), nil
}

// Scan implements sql.Scanner. Booleans are stored as 0/1 and timestamps
// as RFC 3339 text.
func (v *Value) Scan(src any) error {
	switch x := src.(type) {
	case nil:
		*v = Null()
	case int64:
		*v = Integer(x)
	case int32:
		*v = Integer(x)
	case int:
		*v = Integer(x)
	case float64:
		*v = Real(x)
	case float32:
		*v = Real(x)
	case bool:
		*v = boolValue(x)
	case string:
		*v = Text(x)
	case []byte:
		*v = Text(string(x))
	case time.Time:
		*v = Text(x.Format(time.RFC3339Nano))
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrInvalidValue, src)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInteger:
		return strconv.AppendInt(nil, v.i, 10), nil
	case KindReal:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("%w: %v has no JSON form", ErrInvalidValue, v.f)
		}
		return json.Marshal(v.f)
	case KindText:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler. Numbers without a fraction or
// exponent that fit in 64 bits become integers, other numbers become reals,
// booleans become 0/1. Objects and arrays are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	switch x := tok.(type) {
	case nil:
		*v = Null()
	case bool:
		*v = boolValue(x)
	case string:
		*v = Text(x)
	case json.Number:
		*v, err = numberValue(x)
		return err
	default:
		return fmt.Errorf("%w: objects and arrays are not cell values", ErrInvalidValue)
	}
	return nil
}

func numberValue(n json.Number) (Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Integer(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return Real(f), nil
}

func boolValue(b bool) Value {
	if b {
		return Integer(1)
	}
	return Integer(0)
}

// Cell is one named value of a Row.
type Cell struct {
	Column string
	Value  Value
}

// Row is an ordered mapping of column name to Value. Its JSON form is an
// object whose keys keep the row's order.
type Row []Cell

// Get returns the value stored under column.
func (r Row) Get(column string) (Value, bool) {
	for _, c := range r {
		if c.Column == column {
			return c.Value, true
		}
	}
	return Value{}, false
}

// Columns returns the column names in order.
func (r Row) Columns() []string {
	cols := make([]string, len(r))
	for i, c := range r {
		cols[i] = c.Column
	}
	return cols
}

// MarshalJSON implements json.Marshaler.
func (r Row) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Column)
		if err != nil {
			return nil, err
		}
		val, err := c.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler. Duplicate keys are rejected.
func (r *Row) UnmarshalJSON(data []byte) error {
	row := Row{}
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		if _, dup := row.Get(key); dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidValue, key)
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("column %q: %w", key, err)
		}
		row = append(row, Cell{Column: key, Value: v})
		return nil
	})
	if err != nil {
		return err
	}
	*r = row
	return nil
}

// decodeObject walks a JSON object in document order.
func decodeObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: expected a JSON object", ErrInvalidValue)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: expected an object key", ErrInvalidValue)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return nil
}
