// Package server exposes the HTTP surface consumed by the frontend:
// upload-driven resolution jobs with SSE progress streams, FSBO area
// searches, cache statistics, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dispodojo/agent-finder/pkg/config"
	"github.com/dispodojo/agent-finder/pkg/fsbo"
	"github.com/dispodojo/agent-finder/pkg/jobs"
	"github.com/dispodojo/agent-finder/pkg/metrics"
	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

// fsboSearch is the in-memory state of one FSBO search. Completed
// searches also live in the store; this overlay carries what SQLite
// does not: live progress and this session's results.
type fsboSearch struct {
	status   string
	criteria models.FSBOSearchCriteria
	results  []models.FSBOListing
	total    int
	err      string
	progress []json.RawMessage
}

// Server wires the job manager, the FSBO store, and the HTTP handlers
type Server struct {
	cfg     *config.Config
	logger  *reporting.Logger
	metrics *metrics.Metrics
	jobs    *jobs.Manager
	store   *fsbo.Store

	// run hooks, replaceable in tests
	runJob  func(ctx context.Context, id string)
	runFSBO func(ctx context.Context, id string, criteria models.FSBOSearchCriteria)

	// tailEvery is the SSE poll interval
	tailEvery time.Duration

	mu       sync.Mutex
	searches map[string]*fsboSearch
	cancels  map[string]context.CancelFunc
}

// New builds a server rooted at cfg.Server.DataDir
func New(cfg *config.Config, logger *reporting.Logger, m *metrics.Metrics) (*Server, error) {
	manager, err := jobs.NewManager(cfg.Server.DataDir, logger)
	if err != nil {
		return nil, err
	}
	store, err := fsbo.OpenStore(filepath.Join(cfg.Server.DataDir, "fsbo.db"))
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger.WithField("component", "server"),
		metrics:   m,
		jobs:      manager,
		store:     store,
		tailEvery: 300 * time.Millisecond,
		searches:  make(map[string]*fsboSearch),
		cancels:   make(map[string]context.CancelFunc),
	}
	s.runJob = s.resolveJob
	s.runFSBO = s.aggregateFSBO
	return s, nil
}

// Close releases the FSBO store
func (s *Server) Close() error {
	return s.store.Close()
}

// Jobs returns the job manager, used by the CLI for maintenance
func (s *Server) Jobs() *jobs.Manager {
	return s.jobs
}

// Router builds the chi handler tree
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Route("/api", func(api chi.Router) {
		api.Post("/upload", s.handleUpload)
		api.Get("/progress/{jobID}", s.handleProgress)
		api.Get("/download/{jobID}", s.handleDownload)
		api.Get("/jobs", s.handleListJobs)
		api.Get("/jobs/{jobID}/results", s.handleJobResults)
		api.Post("/jobs/{jobID}/cancel", s.handleCancelJob)
		api.Post("/jobs/{jobID}/resume", s.handleResumeJob)
		api.Delete("/jobs/{jobID}", s.handleDeleteJob)
		api.Get("/cache/stats", s.handleCacheStats)

		api.Post("/fsbo/search", s.handleFSBOSearch)
		api.Get("/fsbo/progress/{searchID}", s.handleFSBOProgress)
		api.Get("/fsbo/results/{searchID}", s.handleFSBOResults)
		api.Get("/fsbo/download/{searchID}", s.handleFSBODownload)
		api.Get("/fsbo/searches", s.handleFSBOSearches)
		api.Delete("/fsbo/searches/{searchID}", s.handleFSBODeleteSearch)
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

// ListenAndServe runs the server until the context is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.Addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("HTTP server listening", "addr", s.cfg.Server.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// writeJSON writes a JSON response body
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// httpError writes an error the way the frontend expects it
func httpError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
