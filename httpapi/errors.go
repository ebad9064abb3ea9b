package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/arllen133/tablestore"
	"github.com/arllen133/tablestore/mailer"
)

// statusOf maps an error to its response status.
func statusOf(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}

	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, tablestore.ErrInvalidIdentifier),
		errors.Is(err, tablestore.ErrInvalidColumnType),
		errors.Is(err, tablestore.ErrInvalidValue),
		errors.Is(err, tablestore.ErrUnknownColumn),
		errors.Is(err, mailer.ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, errMissingField):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tablestore.ErrNotFound),
		errors.Is(err, tablestore.ErrTableNotFound):
		return http.StatusNotFound
	case errors.Is(err, tablestore.ErrConstraintViolation):
		return http.StatusConflict
	case errors.Is(err, tablestore.ErrConnLost):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// detailOf returns the client-facing message for err.
func detailOf(err error) string {
	if errors.Is(err, mailer.ErrNotConfigured) {
		return "Email configuration is incomplete"
	}
	return err.Error()
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	writeDetail(w, status, detailOf(err))
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
