// Package server exposes the store and the transformation engine over HTTP.
//
// Routes:
//
//	GET    /api/health
//	GET    /api/project                 POST /api/project
//	GET    /api/project/{id}            PUT|DELETE /api/project/{id}
//	GET    /api/table?project=ID        GET|DELETE /api/table/{id}
//	GET    /api/tablerow?table=ID&offset=&limit=
//	GET    /api/transformation?table=ID POST /api/transformation
//	GET    /api/transformation/{id}     PUT|DELETE /api/transformation/{id}
//	POST   /api/transformation/test
//	POST   /api/transform/{table_id}/transformations
//	GET    /metrics                     (when a metrics handler is configured)
package server

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"sand/internal/store"
	"sand/internal/transform"
)

// Config controls the HTTP surface.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxBodyBytes caps request bodies; 0 means 1 MiB.
	MaxBodyBytes int64

	// RateLimit is the number of transformation runs per second allowed
	// across all clients, with Burst headroom. 0 disables limiting.
	RateLimit float64
	Burst     int

	// Metrics, when set, is served at /metrics.
	Metrics http.Handler
}

// Server holds the routes and their dependencies.
type Server struct {
	cfg     Config
	mux     *http.ServeMux
	st      *store.Store
	eng     *transform.Engine
	log     *slog.Logger
	limiter *rate.Limiter
}

// New builds a Server. A nil logger discards output.
func New(cfg Config, st *store.Store, eng *transform.Engine, log *slog.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		cfg: cfg,
		mux: http.NewServeMux(),
		st:  st,
		eng: eng,
		log: log,
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}
	s.routes()
	return s
}

// Handler returns the mux wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.requestID(s.recoverer(s.observe(s.mux)))
}

// HTTPServer returns an *http.Server for cfg.Addr serving Handler.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
	}
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("GET /api/project", s.handleListProjects)
	s.mux.HandleFunc("POST /api/project", s.handleCreateProject)
	s.mux.HandleFunc("GET /api/project/{id}", s.handleGetProject)
	s.mux.HandleFunc("PUT /api/project/{id}", s.handleUpdateProject)
	s.mux.HandleFunc("DELETE /api/project/{id}", s.handleDeleteProject)

	s.mux.HandleFunc("GET /api/table", s.handleListTables)
	s.mux.HandleFunc("GET /api/table/{id}", s.handleGetTable)
	s.mux.HandleFunc("DELETE /api/table/{id}", s.handleDeleteTable)
	s.mux.HandleFunc("GET /api/tablerow", s.handleTableRows)

	s.mux.HandleFunc("GET /api/transformation", s.handleListTransformations)
	s.mux.HandleFunc("POST /api/transformation", s.handleCreateTransformation)
	s.mux.HandleFunc("GET /api/transformation/{id}", s.handleGetTransformation)
	s.mux.HandleFunc("PUT /api/transformation/{id}", s.handleUpdateTransformation)
	s.mux.HandleFunc("DELETE /api/transformation/{id}", s.handleDeleteTransformation)

	s.mux.Handle("POST /api/transformation/test", s.rateLimit(http.HandlerFunc(s.handleTestTransformation)))
	s.mux.Handle("POST /api/transform/{table_id}/transformations", s.rateLimit(http.HandlerFunc(s.handleTransform)))

	if s.cfg.Metrics != nil {
		s.mux.Handle("GET /metrics", s.cfg.Metrics)
	}
}
