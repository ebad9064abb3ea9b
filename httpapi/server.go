// Package httpapi exposes the user store and the generic row store over HTTP.
//
// Routes:
//
//	GET    /                                 liveness message
//	GET    /users                            list users
//	POST   /users                            create a user
//	GET    /users/{id}                       fetch a user
//	DELETE /users/{id}                       delete a user
//	POST   /create-table                     create a table from {name, column}
//	GET    /get_data/{table_name}            every row of a table
//	POST   /add_data/{table_name}            insert one row
//	DELETE /delete_data/{table_name}/{id}    delete one row
//	POST   /send-email                       send a plain-text mail
//	GET    /static/...                       files from the static directory
//
// Failures are written as {"detail": "..."} with a status chosen from the
// error kind; see statusOf.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/arllen133/tablestore"
	"github.com/arllen133/tablestore/mailer"
)

// Users is the fixed user CRUD surface.
type Users interface {
	ListUsers(ctx context.Context) ([]tablestore.User, error)
	CreateUser(ctx context.Context, u tablestore.User) (tablestore.User, error)
	GetUser(ctx context.Context, id int64) (tablestore.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// Rows is the schema-on-demand table surface.
type Rows interface {
	CreateTable(ctx context.Context, name string, cols tablestore.ColumnSpecs) (tablestore.TableDef, error)
	Insert(ctx context.Context, table string, row tablestore.Row) (tablestore.Row, error)
	SelectAll(ctx context.Context, table string) ([]tablestore.Row, error)
	DeleteByID(ctx context.Context, table string, id int64) (int64, error)
}

// Sender delivers mail for POST /send-email.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server routes requests to the stores.
type Server struct {
	users     Users
	rows      Rows
	mail      Sender
	logger    *slog.Logger
	staticDir string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access and error logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithSender enables POST /send-email. Without it the route answers 500
// "Email configuration is incomplete".
func WithSender(m Sender) Option {
	return func(s *Server) {
		s.mail = m
	}
}

// WithStaticDir serves dir under /static/.
func WithStaticDir(dir string) Option {
	return func(s *Server) {
		s.staticDir = dir
	}
}

// New creates a Server over users and rows.
func New(users Users, rows Rows, opts ...Option) *Server {
	s := &Server{
		users:  users,
		rows:   rows,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped in request id, access log and
// panic recovery middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)

	mux.HandleFunc("GET /users", s.handleListUsers)
	mux.HandleFunc("POST /users", s.handleCreateUser)
	mux.HandleFunc("GET /users/{id}", s.handleGetUser)
	mux.HandleFunc("DELETE /users/{id}", s.handleDeleteUser)

	mux.HandleFunc("POST /create-table", s.handleCreateTable)
	mux.HandleFunc("GET /get_data/{table_name}", s.handleGetData)
	mux.HandleFunc("POST /add_data/{table_name}", s.handleAddData)
	mux.HandleFunc("DELETE /delete_data/{table_name}/{id}", s.handleDeleteData)

	mux.HandleFunc("POST /send-email", s.handleSendEmail)

	if s.staticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))
	}

	return requestID(s.accessLog(s.recoverer(mux)))
}
