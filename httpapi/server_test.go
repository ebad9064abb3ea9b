package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arllen133/tablestore"
	"github.com/arllen133/tablestore/httpapi"
	"github.com/arllen133/tablestore/mailer"
)

type stubSender struct {
	sent []mailer.Message
	err  error
}

func (s *stubSender) Send(_ context.Context, msg mailer.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func newHandler(t *testing.T, opts ...httpapi.Option) http.Handler {
	t.Helper()
	ctx := context.Background()

	session, err := tablestore.Open(ctx, "sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	users := tablestore.NewUserStore(session)
	require.NoError(t, users.EnsureSchema(ctx))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]httpapi.Option{httpapi.WithLogger(logger)}, opts...)
	return httpapi.New(users, tablestore.NewRowStore(session), opts...).Handler()
}

func newTestServer(t *testing.T, opts ...httpapi.Option) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newHandler(t, opts...))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, strings.TrimSpace(string(b))
}

func detail(t *testing.T, body string) string {
	t.Helper()
	var e struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &e), body)
	return e.Detail
}

func TestRoot(t *testing.T) {
	srv := newTestServer(t)
	status, body := do(t, srv, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"message":"Hello, World! The REST server is running."}`, body)

	status, _ = do(t, srv, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUserRoutes(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, `[]`, body)

	status, body = do(t, srv, http.MethodPost, "/users", `{"id":77,"name":"Ann","email":"ann@example.com","age":30}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.JSONEq(t, `{"id":1,"name":"Ann","email":"ann@example.com","age":30}`, body)

	status, body = do(t, srv, http.MethodGet, "/users/1", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"id":1,"name":"Ann","email":"ann@example.com","age":30}`, body)

	status, body = do(t, srv, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[{"id":1,"name":"Ann","email":"ann@example.com","age":30}]`, body)

	status, body = do(t, srv, http.MethodDelete, "/users/1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, `"User Deleted"`, body)

	status, body = do(t, srv, http.MethodDelete, "/users/1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, `"User Deleted"`, body)

	status, body = do(t, srv, http.MethodGet, "/users/1", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "User not found", detail(t, body))
}

func TestCreateUserErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"name":`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"wrong type", `{"name":"a","email":"b","age":"old"}`, http.StatusBadRequest},
		{"missing age", `{"name":"a","email":"b"}`, http.StatusUnprocessableEntity},
		{"missing email", `{"name":"a","age":1}`, http.StatusUnprocessableEntity},
		{"blank name", `{"name":"","email":"b","age":1}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, http.MethodPost, "/users", tt.body)
			assert.Equal(t, tt.status, status, body)
			assert.NotEmpty(t, detail(t, body))
		})
	}

	status, _ := do(t, srv, http.MethodGet, "/users/abc", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGenericTableRoutes(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodPost, "/create-table",
		`{"name":"orders","column":{"item":"TEXT","qty":"INTEGER","price":"REAL"}}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, `"Table orders created"`, body)

	status, body = do(t, srv, http.MethodPost, "/add_data/orders", `{"price":0.5,"item":"apple","qty":3}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, `{"price":0.5,"item":"apple","qty":3}`, body)

	status, body = do(t, srv, http.MethodGet, "/get_data/orders", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, `[{"id":1,"item":"apple","qty":3,"price":0.5}]`, body)

	status, body = do(t, srv, http.MethodDelete, "/delete_data/orders/1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, `"Row 1 deleted from orders"`, body)

	status, body = do(t, srv, http.MethodDelete, "/delete_data/orders/1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, `"Row 1 deleted from orders"`, body)

	status, body = do(t, srv, http.MethodGet, "/get_data/orders", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, `[]`, body)
}

func TestGenericTableErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad table name", http.MethodPost, "/create-table", `{"name":"x;drop table users","column":{}}`, http.StatusBadRequest},
		{"bad column name", http.MethodPost, "/create-table", `{"name":"t","column":{"a b":"TEXT"}}`, http.StatusBadRequest},
		{"bad column type", http.MethodPost, "/create-table", `{"name":"t","column":{"a":"TEXT); DROP TABLE users; --"}}`, http.StatusBadRequest},
		{"missing table", http.MethodGet, "/get_data/ghost", "", http.StatusNotFound},
		{"invalid table in path", http.MethodGet, "/get_data/sqlite_master", "", http.StatusBadRequest},
		{"nested value", http.MethodPost, "/add_data/users", `{"name":{"first":"a"}}`, http.StatusBadRequest},
		{"not null", http.MethodPost, "/add_data/users", `{"name":"a"}`, http.StatusConflict},
		{"bad id", http.MethodDelete, "/delete_data/users/x", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status, body)
			assert.NotEmpty(t, detail(t, body))
		})
	}

	// users table is still intact
	status, _ := do(t, srv, http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestSendEmail(t *testing.T) {
	body := `{"to_email":"a@example.com","subject":"hi","body":"hello"}`

	t.Run("not configured", func(t *testing.T) {
		srv := newTestServer(t)
		status, resp := do(t, srv, http.MethodPost, "/send-email", body)
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "Email configuration is incomplete", detail(t, resp))
	})

	t.Run("incomplete mailer", func(t *testing.T) {
		srv := newTestServer(t, httpapi.WithSender(mailer.New(mailer.Config{})))
		status, resp := do(t, srv, http.MethodPost, "/send-email", body)
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "Email configuration is incomplete", detail(t, resp))
	})

	t.Run("sent", func(t *testing.T) {
		sender := &stubSender{}
		srv := newTestServer(t, httpapi.WithSender(sender))
		status, resp := do(t, srv, http.MethodPost, "/send-email", body)
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `{"message":"Email sent successfully"}`, resp)
		assert.Equal(t, []mailer.Message{{To: "a@example.com", Subject: "hi", Body: "hello"}}, sender.sent)
	})

	t.Run("relay failure", func(t *testing.T) {
		srv := newTestServer(t, httpapi.WithSender(&stubSender{err: errors.New("535 authentication failed")}))
		status, resp := do(t, srv, http.MethodPost, "/send-email", body)
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "535 authentication failed", detail(t, resp))
	})
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("static hello"), 0o600))

	srv := newTestServer(t, httpapi.WithStaticDir(dir))
	status, body := do(t, srv, http.MethodGet, "/static/hello.txt", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "static hello", body)

	status, _ = do(t, srv, http.MethodGet, "/static/missing.txt", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Len(t, resp.Header.Get(httpapi.RequestIDHeader), 36)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set(httpapi.RequestIDHeader, "abc-123")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(httpapi.RequestIDHeader))
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := newHandler(t, httpapi.WithLogger(logger))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/9", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry), buf.String())
	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, "/users/9", entry["path"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
	assert.NotEmpty(t, entry["request_id"])
}

func TestConnLostIsUnavailable(t *testing.T) {
	session, err := tablestore.Open(context.Background(), "sqlite3", ":memory:")
	require.NoError(t, err)
	users := tablestore.NewUserStore(session)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(httpapi.New(users, tablestore.NewRowStore(session), httpapi.WithLogger(logger)).Handler())
	t.Cleanup(srv.Close)

	require.NoError(t, session.Close())

	status, body := do(t, srv, http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, detail(t, body), "database is closed")
}
