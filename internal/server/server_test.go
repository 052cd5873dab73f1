package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"sand/internal/sandbox"
	"sand/internal/store"
	_ "sand/internal/store/sqlite"
	"sand/internal/transform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

type fixture struct {
	srv     *Server
	h       http.Handler
	st      *store.Store
	project store.Project
	table   store.Table
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{Kind: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	p, err := st.CreateProject(ctx, store.Project{Name: "Default"})
	require.NoError(t, err)
	tbl, err := st.CreateTable(ctx, store.Table{
		ProjectID: p.ID,
		Name:      "mountains",
		Columns:   []string{"name", "height"},
	}, [][]any{
		{"Fansipan", "3143"},
		{"Putaleng", "3049"},
		{"Pu Si Lung", "3076"},
	})
	require.NoError(t, err)

	eng := transform.NewEngine(st, sandbox.NewCompiler(sandbox.Options{}), nil)
	srv := New(cfg, st, eng, nil)
	return &fixture{srv: srv, h: srv.Handler(), st: st, project: p, table: tbl}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","storage":"sqlite"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDIsPropagated(t *testing.T) {
	f := newFixture(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestTransform_Map(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(t, http.MethodPost, "/api/transform/"+itoa(f.table.ID)+"/transformations",
		`{"type":"map","datapath":"name","code":"return value.toUpperCase()","rows":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[
		{"path":0,"value":"Fansipan","ok":"FANSIPAN"},
		{"path":1,"value":"Putaleng","ok":"PUTALENG"}
	]`, rec.Body.String())
}

func TestTransform_TestEndpointUsesBodyTableID(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(t, http.MethodPost, "/api/transformation/test",
		`{"type":"filter","table_id":`+itoa(f.table.ID)+`,"datapath":["height"],"code":"return Number(value) > 3100"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	results := decodeBody[[]map[string]any](t, rec)
	require.Len(t, results, 3)
	assert.Equal(t, true, results[0]["ok"])
	assert.Equal(t, false, results[1]["ok"])

	rec = f.do(t, http.MethodPost, "/api/transformation/test", `{"type":"map","datapath":"name","code":"return 1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "table_id")
}

func TestTransform_ErrorStatuses(t *testing.T) {
	f := newFixture(t, Config{})
	path := "/api/transform/" + itoa(f.table.ID) + "/transformations"

	cases := []struct {
		name   string
		path   string
		body   string
		status int
		msg    string
	}{
		{"validation", path, `{"type":"reduce","datapath":"name","code":"return value"}`, 400, "unknown transformation type"},
		{"compilation", path, `{"type":"map","datapath":"name","code":"return value +"}`, 400, "Unexpected"},
		{"policy", path, `{"type":"map","datapath":"name","code":"return eval('1')"}`, 400, "eval"},
		{"missing column", path, `{"type":"map","datapath":"elevation","code":"return value"}`, 400, "elevation"},
		{"missing table", "/api/transform/9999/transformations", `{"type":"map","datapath":"name","code":"return value"}`, 404, "not found"},
		{"bad table id", "/api/transform/abc/transformations", `{}`, 400, "invalid table_id"},
		{"malformed body", path, `{"type":`, 400, "malformed JSON"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tc.path, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			body := decodeBody[errorBody](t, rec)
			assert.Equal(t, "error", body.Status)
			assert.Contains(t, body.Message, tc.msg)
		})
	}
}

func TestTransform_RowFailuresStillReturn200(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(t, http.MethodPost, "/api/transform/"+itoa(f.table.ID)+"/transformations",
		`{"type":"map","datapath":"name","code":"return value.nope()","tolerance":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decodeBody[[]map[string]any](t, rec)
	require.Len(t, results, 1)
	assert.Contains(t, results[0]["error"], "TypeError")
}

func TestTransform_RateLimited(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 0.001, Burst: 1})
	path := "/api/transform/" + itoa(f.table.ID) + "/transformations"
	body := `{"type":"map","datapath":"name","code":"return value","rows":1}`

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, path, body).Code)
	rec := f.do(t, http.MethodPost, path, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// CRUD routes are not limited.
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/project", "").Code)
}

func TestBodyLimit(t *testing.T) {
	f := newFixture(t, Config{MaxBodyBytes: 64})
	code := strings.Repeat("x", 128)
	rec := f.do(t, http.MethodPost, "/api/transformation/test",
		`{"type":"map","table_id":1,"datapath":"name","code":"`+code+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestProjectCRUD(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodPost, "/api/project", `{"name":"Peaks","description":"tall things"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	p := decodeBody[store.Project](t, rec)
	assert.NotZero(t, p.ID)

	rec = f.do(t, http.MethodPost, "/api/project", `{"name":"Peaks"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/project", `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/project/"+itoa(p.ID), `{"name":"Summits"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/project/"+itoa(p.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Summits", decodeBody[store.Project](t, rec).Name)

	rec = f.do(t, http.MethodGet, "/api/project", "")
	assert.Len(t, decodeBody[[]store.Project](t, rec), 2)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/project/"+itoa(p.ID), "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/project/"+itoa(p.ID), "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/project/"+itoa(p.ID), "").Code)
}

func TestTablesAndRows(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodGet, "/api/table?project="+itoa(f.project.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	tables := decodeBody[[]store.Table](t, rec)
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"name", "height"}, tables[0].Columns)

	rec = f.do(t, http.MethodGet, "/api/tablerow?table="+itoa(f.table.ID)+"&offset=1&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"table":`+itoa(f.table.ID)+`,"index":1,"row":["Putaleng","3049"]}]`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/tablerow?table="+itoa(f.table.ID)+"&limit=-1", "")
	assert.Len(t, decodeBody[[]store.Row](t, rec), 3)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/tablerow", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/tablerow?table=1&offset=-2", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/tablerow?table=999", "").Code)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/table/"+itoa(f.table.ID), "").Code)
	rec = f.do(t, http.MethodGet, "/api/table", "")
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestSavedTransformations(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodPost, "/api/transformation", `{
		"table": `+itoa(f.table.ID)+`, "name": "upper", "type": "map",
		"datapath": ["name"], "outputpath": ["name_upper"],
		"code": "return value.toUpperCase()", "is_draft": true
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saved := decodeBody[store.Transformation](t, rec)
	assert.Equal(t, "javascript", saved.Mode)
	assert.Equal(t, store.OnErrorSetToBlank, saved.OnError)

	rec = f.do(t, http.MethodPost, "/api/transformation", `{
		"table": `+itoa(f.table.ID)+`, "name": "bad", "type": "split", "datapath": ["name"], "code": "return [value]"
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "outputpath")

	rec = f.do(t, http.MethodPost, "/api/transformation", `{
		"table": 999, "name": "orphan", "type": "map", "datapath": ["name"], "code": "return value"
	}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	saved.Code = "return value.toLowerCase()"
	saved.OnError = store.OnErrorAbort
	b, err := json.Marshal(saved)
	require.NoError(t, err)
	rec = f.do(t, http.MethodPut, "/api/transformation/"+itoa(saved.ID), string(b))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/transformation/"+itoa(saved.ID), "")
	got := decodeBody[store.Transformation](t, rec)
	assert.Equal(t, "return value.toLowerCase()", got.Code)
	assert.Equal(t, store.OnErrorAbort, got.OnError)

	rec = f.do(t, http.MethodGet, "/api/transformation?table="+itoa(f.table.ID), "")
	assert.Len(t, decodeBody[[]store.Transformation](t, rec), 1)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/transformation/"+itoa(saved.ID), "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/transformation/"+itoa(saved.ID), "").Code)
}

func TestMetricsRouteOnlyWhenConfigured(t *testing.T) {
	f := newFixture(t, Config{})
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/metrics", "").Code)

	f = newFixture(t, Config{Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("sand_up 1\n"))
	})})
	rec := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sand_up 1\n", rec.Body.String())
}

func TestRecovererReturns500(t *testing.T) {
	f := newFixture(t, Config{})
	h := f.srv.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", bytes.NewReader(nil)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"internal error"}`, rec.Body.String())
}

func TestRecovererKeepsStartedResponse(t *testing.T) {
	f := newFixture(t, Config{})
	h := f.srv.recoverer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`[{"path":0`))
		panic("kaboom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", bytes.NewReader(nil)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, `[{"path":0`, rec.Body.String())
}
