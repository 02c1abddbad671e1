// Package http exposes the simulation, recommendation, and guardrail
// surfaces over a JSON API, plus health and Prometheus endpoints.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/retinalabs/retina/internal/cache"
	"github.com/retinalabs/retina/internal/config"
	"github.com/retinalabs/retina/internal/guardrail"
	"github.com/retinalabs/retina/internal/persistence"
	"github.com/retinalabs/retina/internal/refresh"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// Deps are the wired collaborators the server needs. Cache, Debouncer,
// Templates, and Stream are optional.
type Deps struct {
	Store     persistence.Store
	Engine    *guardrail.Engine
	Cache     *cache.ResultCache
	Debouncer *refresh.Debouncer
	Templates *config.TemplatesConfig
	Stream    http.Handler
}

// Server is the HTTP interface.
type Server struct {
	router  *mux.Router
	server  *http.Server
	cfg     config.Config
	deps    Deps
	metrics *MetricsRegistry
}

// NewServer builds the router and HTTP server from config and deps.
func NewServer(cfg config.Config, deps Deps) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		cfg:     cfg,
		deps:    deps,
		metrics: NewMetricsRegistry(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/simulate", s.handleSimulate).Methods("POST")
	api.HandleFunc("/outcomes", s.handleOutcomes).Methods("POST")

	api.HandleFunc("/guardrails", s.handleCreateGuardrail).Methods("POST")
	api.HandleFunc("/decisions/{decisionID}/guardrails", s.handleListGuardrails).Methods("GET")
	api.HandleFunc("/decisions/{decisionID}/guardrails/from-template", s.handleApplyTemplate).Methods("POST")
	api.HandleFunc("/guardrails/{id}/violations", s.handleListViolations).Methods("GET")
	api.HandleFunc("/guardrails/{id}/adjustments", s.handleListAdjustments).Methods("GET")
	api.HandleFunc("/violations/{id}/resolve", s.handleResolveViolation).Methods("POST")

	// Scrape endpoint and the live outcome stream sit outside the JSON
	// middleware.
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	if s.deps.Stream != nil {
		s.router.Handle("/ws/outcomes", s.deps.Stream)
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the server until it fails or is shut down.
func (s *Server) Start() error {
	log.Info().Str("addr", s.cfg.Server.Addr).Msg("http server starting")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests and flushes pending refreshes.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("http server shutting down")
	if s.deps.Debouncer != nil {
		s.deps.Debouncer.Flush()
	}
	return s.server.Shutdown(ctx)
}

// requestIDMiddleware tags each request with a short unique ID.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLoggingMiddleware logs every request with status and duration.
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}

// jsonContentTypeMiddleware sets the JSON content type for API responses.
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// responseWrapper captures HTTP status codes for logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
