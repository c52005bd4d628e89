// Package web provides the HTTP API for uploading recipient data and
// dispatching personalized batches.
package web

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bulkpost/bulkpost/internal/dispatch"
)

// shutdownTimeout is the maximum time to wait for in-flight requests
// during graceful shutdown.
const shutdownTimeout = 30 * time.Second

// ServerConfig holds the configuration for the API server.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g., ":8080").
	ListenAddr string

	// MaxBodySize caps request bodies, covering spreadsheet uploads and
	// attachment payloads.
	MaxBodySize int64

	// JWTSecret enables bearer-token authentication on the API routes.
	// Empty disables authentication.
	JWTSecret string

	// TLSConfig enables HTTPS when non-nil.
	TLSConfig *tls.Config

	// Dispatcher runs send batches.
	Dispatcher *dispatch.Dispatcher
}

// Server is the HTTP server for the dispatch API.
type Server struct {
	config ServerConfig
	router *chi.Mux
}

// New creates a new Server with the given configuration.
func New(cfg ServerConfig) *Server {
	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(5 * time.Minute))
	s.router.Use(corsHeaders)
	s.router.Use(requestLogger)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/email", func(r chi.Router) {
		r.Use(bearerAuth(s.config.JWTSecret))
		r.Post("/upload", s.handleUpload)
		r.Post("/send", s.handleSend)
	})
}

// ListenAndServe starts the API server and blocks until the context is
// cancelled. On cancellation it drains in-flight requests for up to
// 30 seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.router,
		TLSConfig:         s.config.TLSConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("API server listening",
		"addr", s.config.ListenAddr,
		"auth_enabled", s.config.JWTSecret != "",
		"tls_enabled", s.config.TLSConfig != nil,
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Handler exposes the router, used for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// corsHeaders allows browser clients on other origins to call the API,
// matching the permissive CORS posture of the upload UI this serves.
func corsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger emits one structured log line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
