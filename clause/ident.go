package clause

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidIdentifier is returned when a table or column name fails validation.
var ErrInvalidIdentifier = errors.New("tablestore: invalid identifier")

// MaxIdentLength is the longest table or column name accepted.
const MaxIdentLength = 64

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Ident is a table or column name that has passed validation.
// The zero value is not a valid identifier; use ParseIdent or MustIdent.
//
// Statement builders take Ident rather than string so that a raw,
// caller-supplied name can never reach statement text unchecked.
type Ident struct {
	name string
}

// ParseIdent validates s as a SQL identifier.
//
// Accepted names start with a letter or underscore followed by letters,
// digits and underscores, at most MaxIdentLength characters. Names with the
// reserved "sqlite_" prefix are rejected.
func ParseIdent(s string) (Ident, error) {
	if s == "" {
		return Ident{}, fmt.Errorf("%w: name is empty", ErrInvalidIdentifier)
	}
	if len(s) > MaxIdentLength {
		return Ident{}, fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidIdentifier, s, MaxIdentLength)
	}
	if !identPattern.MatchString(s) {
		return Ident{}, fmt.Errorf("%w: %q must match %s", ErrInvalidIdentifier, s, identPattern)
	}
	if strings.HasPrefix(strings.ToLower(s), "sqlite_") {
		return Ident{}, fmt.Errorf("%w: %q uses the reserved sqlite_ prefix", ErrInvalidIdentifier, s)
	}
	return Ident{name: s}, nil
}

// MustIdent is like ParseIdent but panics on an invalid name.
// It is meant for names fixed at compile time.
func MustIdent(s string) Ident {
	id, err := ParseIdent(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the bare name.
func (i Ident) String() string { return i.name }

// Quoted returns the name wrapped in double quotes, ready for statement text.
func (i Ident) Quoted() string { return `"` + i.name + `"` }

// IsZero reports whether i was never validated.
func (i Ident) IsZero() bool { return i.name == "" }

// EqualFold reports whether two identifiers name the same object.
// SQLite and unquoted PostgreSQL names compare case-insensitively.
func (i Ident) EqualFold(o Ident) bool { return strings.EqualFold(i.name, o.name) }
