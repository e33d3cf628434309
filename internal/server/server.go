// Package server exposes the registry and notification pipeline to the app
// client over REST plus a WebSocket notification stream.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"arrdeck-go/internal/config"
	"arrdeck-go/internal/connector"
	"arrdeck-go/internal/health"
	"arrdeck-go/internal/notify"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	http     *http.Server
	cfg      *config.Config
	logger   *zap.Logger
	registry *connector.Manager
	monitor  *health.Monitor
	notifier *notify.Service
	loader   *config.Loader
	hub      *notify.Hub
	started  time.Time
}

// New builds the HTTP server: router, middlewares, routes.
func New(cfg *config.Config, registry *connector.Manager, monitor *health.Monitor, notifier *notify.Service, hub *notify.Hub, loader *config.Loader, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		monitor:  monitor,
		notifier: notifier,
		loader:   loader,
		hub:      hub,
		started:  time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/services", func(r chi.Router) {
			r.Get("/", s.handleListServices)
			r.Post("/", s.handleAddService)
			r.Get("/test", s.handleTestAll)
			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", s.handleRemoveService)
				r.Get("/test", s.handleTestService)
				r.Get("/health", s.handleServiceHealth)
			})
		})

		r.Get("/downloads/stats", s.handleDownloadStats)
		r.Get("/health", s.handleHealthSnapshot)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/quiet-hours/preview", s.handleQuietHoursPreview)
			r.Post("/test", s.handleTestNotification)
			r.Post("/resume", s.handleResume)
		})
	})

	if hub != nil {
		r.Get("/ws", hub.ServeHTTP)
	}

	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Start runs the HTTP server, blocking until shutdown or error.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.http.Shutdown(ctx)
}

// statusWriter captures the response code for access logs.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w}

		next.ServeHTTP(ww, r)

		s.logger.Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
