package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"sand/internal/store"
	"sand/internal/transform"
)

const defaultRowLimit = 100

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.st.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable", "storage": s.st.Kind(), "message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "storage": s.st.Kind()})
}

// projects

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	ps, err := s.st.ListProjects(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(ps))
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var p store.Project
	if err := s.decode(w, r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		s.writeError(w, r, badRequest("project name must not be empty"))
		return
	}
	p, err := s.st.CreateProject(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.st.GetProject(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var p store.Project
	if err := s.decode(w, r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	p.ID = id
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		s.writeError(w, r, badRequest("project name must not be empty"))
		return
	}
	if err := s.st.UpdateProject(r.Context(), p); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.st.DeleteProject(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// tables

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	project, err := queryInt(r, "project", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ts, err := s.st.ListTables(r.Context(), project)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(ts))
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.st.GetTable(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.st.DeleteTable(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTableRows pages through a table. limit defaults to 100; a negative
// limit returns every remaining row.
func (s *Server) handleTableRows(w http.ResponseWriter, r *http.Request) {
	table, err := queryInt(r, "table", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if table <= 0 {
		s.writeError(w, r, badRequest("table query parameter is required"))
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if offset < 0 {
		s.writeError(w, r, badRequest("offset must be non-negative"))
		return
	}
	limit, err := queryInt(r, "limit", defaultRowLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	if _, err := s.st.GetTable(ctx, table); err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.st.Rows(ctx, table, int(offset), int(limit))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(rows))
}

// saved transformations

func (s *Server) handleListTransformations(w http.ResponseWriter, r *http.Request) {
	table, err := queryInt(r, "table", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ts, err := s.st.ListTransformations(r.Context(), table)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(ts))
}

func (s *Server) handleCreateTransformation(w http.ResponseWriter, r *http.Request) {
	var t store.Transformation
	if err := s.decode(w, r, &t); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validateTransformation(&t); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.st.CreateTransformation(r.Context(), t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTransformation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.st.GetTransformation(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTransformation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var t store.Transformation
	if err := s.decode(w, r, &t); err != nil {
		s.writeError(w, r, err)
		return
	}
	t.ID = id
	if err := validateTransformation(&t); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.st.UpdateTransformation(r.Context(), t); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTransformation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.st.DeleteTransformation(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validateTransformation applies the run-request rules to a saved
// transformation and fills defaults.
func validateTransformation(t *store.Transformation) error {
	if t.TableID <= 0 {
		return &transform.ValidationError{Field: "table", Message: "is required"}
	}
	if strings.TrimSpace(t.Name) == "" {
		return &transform.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if t.Mode == "" {
		t.Mode = transform.ModeJavaScript
	}
	if t.OnError == "" {
		t.OnError = store.OnErrorSetToBlank
	}
	if !t.OnError.Valid() {
		return &transform.ValidationError{Field: "on_error", Message: "unknown policy " + string(t.OnError)}
	}
	req := transform.Request{
		Type:       transform.Kind(t.Type),
		Mode:       t.Mode,
		Datapath:   transform.Paths(t.Datapath),
		Code:       t.Code,
		Outputpath: transform.Paths(t.Outputpath),
	}
	return req.Validate()
}

// running transformations

// handleTestTransformation runs a request whose body names the table.
func (s *Server) handleTestTransformation(w http.ResponseWriter, r *http.Request) {
	var req transform.Request
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.TableID <= 0 {
		s.writeError(w, r, &transform.ValidationError{Field: "table_id", Message: "is required"})
		return
	}
	s.run(w, r, req.TableID, req)
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "table_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req transform.Request
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.run(w, r, id, req)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, tableID int64, req transform.Request) {
	results, err := s.eng.Run(r.Context(), tableID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(results))
}

// nonNilSlice makes empty lists encode as [] rather than null.
func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
