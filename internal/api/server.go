// Package api provides the HTTP surface of the coordination layer: REST
// handlers that dispatch into per-entity actors and SSE streams carrying
// each actor's broadcast events.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/covalent-hq/conclave/internal/diagnostics"
	"github.com/covalent-hq/conclave/internal/runtime"
)

// Server exposes the actor runtime over HTTP.
type Server struct {
	router    chi.Router
	rt        *runtime.Runtime
	collector *diagnostics.SystemMetricsCollector
	logger    *slog.Logger
	corsOn    bool
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCORS enables or disables CORS headers.
func WithCORS(enabled bool) ServerOption {
	return func(s *Server) {
		s.corsOn = enabled
	}
}

// NewServer creates a new API server over the given runtime.
func NewServer(rt *runtime.Runtime, opts ...ServerOption) *Server {
	s := &Server{
		rt:        rt,
		collector: diagnostics.NewSystemMetricsCollector(),
		logger:    slog.Default(),
		corsOn:    true,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures Chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	if s.corsOn {
		corsHandler := cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
			AllowCredentials: false,
			MaxAge:           300,
		})
		r.Use(corsHandler.Handler)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/diagnostics", s.handleDiagnostics)

		r.Route("/cache/{namespace}", func(r chi.Router) {
			r.Put("/set", s.handleCacheSet)
			r.Get("/get", s.handleCacheGet)
			r.Delete("/delete", s.handleCacheDelete)
			r.Delete("/clear", s.handleCacheClear)
			r.Post("/invalidate", s.handleCacheInvalidate)
			r.Get("/entries", s.handleCacheEntries)
			r.Get("/stats", s.handleCacheStats)
			r.Get("/invalidations", s.handleCacheInvalidations)
			r.Get("/events", s.handleCacheEvents)
		})

		r.Route("/executions/{executionID}", func(r chi.Router) {
			r.Post("/start", s.handleExecutionStart)
			r.Post("/progress", s.handleExecutionProgress)
			r.Post("/pause", s.handleExecutionPause)
			r.Post("/resume", s.handleExecutionResume)
			r.Post("/cancel", s.handleExecutionCancel)
			r.Get("/status", s.handleExecutionStatus)
			r.Get("/steps", s.handleExecutionSteps)
			r.Get("/events", s.handleExecutionEvents)
		})

		r.Route("/chat/{roomID}", func(r chi.Router) {
			r.Post("/messages", s.handleChatPost)
			r.Get("/messages", s.handleChatMessages)
			r.Patch("/session", s.handleChatUpdateSession)
			r.Get("/session", s.handleChatSession)
			r.Delete("/clear", s.handleChatClear)
			r.Get("/events", s.handleChatEvents)
		})

		r.Route("/terminal/{sessionID}", func(r chi.Router) {
			r.Post("/commands", s.handleTerminalStart)
			r.Patch("/commands/{commandID}", s.handleTerminalUpdate)
			r.Get("/commands", s.handleTerminalCommands)
			r.Delete("/clear", s.handleTerminalClear)
			r.Get("/events", s.handleTerminalEvents)
		})

		r.Route("/documents/{documentID}", func(r chi.Router) {
			r.Post("/operations", s.handleDocumentApply)
			r.Get("/document", s.handleDocumentGet)
			r.Get("/operations", s.handleDocumentOperations)
			r.Delete("/clear", s.handleDocumentClear)
			r.Get("/events", s.handleDocumentEvents)
		})

		r.Route("/sessions/{kind}/{sessionID}", func(r chi.Router) {
			r.Post("/entries", s.handleLogAppend)
			r.Get("/entries", s.handleLogEntries)
			r.Patch("/state", s.handleLogSetState)
			r.Get("/state", s.handleLogState)
			r.Delete("/clear", s.handleLogClear)
			r.Get("/events", s.handleLogEvents)
		})
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON parses a request body into dst. Unknown fields are
// tolerated; handlers validate the fields they use.
func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"runtime": s.rt.Metrics(),
	})
}

// handleDiagnostics returns a best-effort system metrics snapshot.
func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"system":  s.collector.Collect(),
		"runtime": s.rt.Metrics(),
	})
}

// ListenAndServe starts the HTTP server with graceful shutdown on
// context cancellation.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
