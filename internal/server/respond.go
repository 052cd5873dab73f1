package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"sand/internal/sandbox"
	"sand/internal/store"
	"sand/internal/transform"
)

// errorBody is the envelope for every non-2xx JSON response.
type errorBody struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// requestError is a problem with the HTTP request itself.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and writes the error envelope.
// Unexpected errors are logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := s.classify(err)
	if status >= 500 {
		s.log.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("request_id", requestIDFrom(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("err", err))
	}
	writeJSON(w, status, body)
}

func (s *Server) classify(err error) (int, errorBody) {
	body := errorBody{Status: "error", Message: err.Error()}

	var (
		re  *requestError
		ve  *transform.ValidationError
		cnf *transform.ColumnNotFoundError
		ce  *sandbox.CompilationError
		mbe *http.MaxBytesError
	)
	switch {
	case errors.As(err, &re):
		return re.status, body
	case errors.As(err, &ve), errors.As(err, &cnf):
		return http.StatusBadRequest, body
	case errors.As(err, &ce):
		body.Details = ce.Diagnostics
		return http.StatusBadRequest, body
	case errors.As(err, &mbe):
		body.Message = fmt.Sprintf("request body exceeds %d bytes", mbe.Limit)
		return http.StatusRequestEntityTooLarge, body
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, body
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, body
	}
	body.Message = "internal error"
	return http.StatusInternalServerError, body
}

// decode reads a JSON body into dst under the configured size limit.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		return badRequest("malformed JSON body: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s %q", name, r.PathValue(name))
	}
	return id, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int64) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, badRequest("invalid %s %q", name, v)
	}
	return n, nil
}
