package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/arllen133/tablestore"
	"github.com/arllen133/tablestore/mailer"
)

var (
	errBadRequest   = errors.New("bad request")
	errMissingField = errors.New("field required")
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, message{Message: "Hello, World! The REST server is running."})
}

type message struct {
	Message string `json:"message"`
}

// userRequest distinguishes an absent field from a zero one.
type userRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Age   *int    `json:"age"`
}

func (u userRequest) user() (tablestore.User, error) {
	switch {
	case u.Name == nil:
		return tablestore.User{}, fmt.Errorf("%w: name", errMissingField)
	case u.Email == nil:
		return tablestore.User{}, fmt.Errorf("%w: email", errMissingField)
	case u.Age == nil:
		return tablestore.User{}, fmt.Errorf("%w: age", errMissingField)
	}
	return tablestore.User{Name: *u.Name, Email: *u.Email, Age: *u.Age}, nil
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.ListUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := req.user()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.users.CreateUser(r.Context(), u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.users.GetUser(r.Context(), id)
	if errors.Is(err, tablestore.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.users.DeleteUser(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "User Deleted")
}

type createTableRequest struct {
	Name   string                 `json:"name"`
	Column tablestore.ColumnSpecs `json:"column"`
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	def, err := s.rows.CreateTable(r.Context(), req.Name, req.Column)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fmt.Sprintf("Table %s created", def.Name))
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	rows, err := s.rows.SelectAll(r.Context(), r.PathValue("table_name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleAddData(w http.ResponseWriter, r *http.Request) {
	var row tablestore.Row
	if err := decodeBody(w, r, &row); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.rows.Insert(r.Context(), r.PathValue("table_name"), row)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteData(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table_name")
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.rows.DeleteByID(r.Context(), table, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fmt.Sprintf("Row %d deleted from %s", id, table))
}

func (s *Server) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var msg mailer.Message
	if err := decodeBody(w, r, &msg); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.mail == nil {
		s.writeError(w, r, mailer.ErrNotConfigured)
		return
	}
	if err := s.mail.Send(r.Context(), msg); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "Email sent successfully"})
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id %q is not an integer", errBadRequest, raw)
	}
	return id, nil
}

// decodeBody reads a single JSON value into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", errBadRequest)
	}
	return nil
}
