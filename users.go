package tablestore

import (
	"context"
	"fmt"
	"strings"

	"github.com/arllen133/tablestore/clause"
)

// User is the fixed entity of the store.
type User struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
	Age   int    `db:"age" json:"age"`
}

// BeforeCreate rejects users with an empty name or email.
func (u *User) BeforeCreate(context.Context) error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrConstraintViolation)
	}
	if strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrConstraintViolation)
	}
	return nil
}

// UserSchema maps User onto the "users" table.
type UserSchema struct{}

var usersTable = TableDef{
	Name: clause.MustIdent("users"),
	Columns: []ColumnDef{
		{Name: clause.MustIdent("name"), Type: TypeText},
		{Name: clause.MustIdent("email"), Type: TypeText},
		{Name: clause.MustIdent("age"), Type: TypeInteger},
	},
}

func (UserSchema) Table() TableDef { return usersTable }
func (UserSchema) SelectColumns() []string {
	return []string{`"id"`, `"name"`, `"email"`, `"age"`}
}
func (UserSchema) InsertRow(u *User) ([]string, []any) {
	return []string{`"name"`, `"email"`, `"age"`}, []any{u.Name, u.Email, u.Age}
}
func (UserSchema) PK() clause.Column        { return clause.Col(idColumn) }
func (UserSchema) SetPK(u *User, val int64) { u.ID = val }

// UserStore is the CRUD surface of the users table.
type UserStore struct {
	repo *Repository[User]
}

// NewUserStore creates a UserStore on session. Call EnsureSchema before use.
func NewUserStore(session *Session) *UserStore {
	return &UserStore{repo: NewRepository[User](session, UserSchema{})}
}

// EnsureSchema creates the users table if it is missing.
func (s *UserStore) EnsureSchema(ctx context.Context) error {
	return s.repo.EnsureTable(ctx)
}

// Seed inserts the demo user the service has always started with.
func (s *UserStore) Seed(ctx context.Context) (User, error) {
	return s.CreateUser(ctx, User{Name: "Test User", Email: "test@example.com", Age: 25})
}

// ListUsers returns every user in insertion order.
func (s *UserStore) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.Find(ctx)
}

// CreateUser stores u and returns it with the id the store assigned.
// Any id already set on u is ignored.
func (s *UserStore) CreateUser(ctx context.Context, u User) (User, error) {
	u.ID = 0
	if err := s.repo.Create(ctx, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUser returns the user with id, or ErrNotFound.
func (s *UserStore) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := s.repo.FindOne(ctx, id)
	if err != nil {
		return User{}, err
	}
	return *u, nil
}

// DeleteUser removes the user with id. It succeeds whether or not the user existed.
func (s *UserStore) DeleteUser(ctx context.Context, id int64) error {
	_, err := s.repo.Delete(ctx, id)
	return err
}
