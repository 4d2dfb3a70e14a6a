package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kairoshq/kairos/internal/config"
	"github.com/kairoshq/kairos/internal/engine"
	kairosErrors "github.com/kairoshq/kairos/internal/errors"
	"github.com/kairoshq/kairos/internal/logger"
	"github.com/kairoshq/kairos/internal/model"
	"github.com/kairoshq/kairos/internal/orchestrator"
)

// AuditReader exposes the append-only decision trail to the API.
type AuditReader interface {
	ReadAudit(limit int) ([]model.AuditEntry, error)
}

// Server is the HTTP surface of the coordination engine. Every lifecycle
// operation goes through the engine; the server only translates wire shapes
// and maps taxonomy errors to status codes.
type Server struct {
	cfg        config.ServerConfig
	engine     *engine.Engine
	orch       *orchestrator.Orchestrator
	audit      AuditReader
	router     chi.Router
	httpServer *http.Server

	mu      sync.RWMutex
	running bool
}

func NewServer(cfg config.ServerConfig, eng *engine.Engine, orch *orchestrator.Orchestrator, audit AuditReader) *Server {
	s := &Server{
		cfg:    cfg,
		engine: eng,
		orch:   orch,
		audit:  audit,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(traceContext)

	corsOpts := cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}
	if s.cfg.AllowAllOrigins {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/users", s.handleUpsertUser)
		r.Get("/users/{id}/presence", s.handlePresence)
		r.Get("/users/{id}/credibility", s.handleCredibility)

		r.Post("/requests", s.handleSubmit)
		r.Get("/requests/{id}", s.handleGetRequest)
		r.Post("/requests/{id}/accept", s.handleAccept)
		r.Post("/requests/{id}/decline", s.handleDecline)
		r.Post("/requests/{id}/cancel", s.handleCancel)

		r.Post("/sessions/events", s.handleSessionEvent)

		r.Get("/audit", s.handleAudit)
	})

	return r
}

// traceContext carries the request id into the logger context so audit
// entries written downstream correlate back to the API call.
func traceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = logger.WithTraceID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Router exposes the chi router, mainly for httptest.
func (s *Server) Router() chi.Router { return s.router }

func (s *Server) Init(ctx context.Context) error {
	readTimeout, err := config.DurationOrDefault(s.cfg.ReadTimeout, config.DefaultServerReadTimeout)
	if err != nil {
		return fmt.Errorf("parse read timeout: %w", err)
	}
	writeTimeout, err := config.DurationOrDefault(s.cfg.WriteTimeout, config.DefaultServerWriteTimeout)
	if err != nil {
		return fmt.Errorf("parse write timeout: %w", err)
	}
	idleTimeout, err := config.DurationOrDefault(s.cfg.IdleTimeout, config.DefaultServerIdleTimeout)
	if err != nil {
		return fmt.Errorf("parse idle timeout: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	slog.Info("API server initialized", "addr", s.httpServer.Addr)
	return nil
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server stopped unexpectedly", "error", err)
		}
	}()

	slog.Info("API server started", "addr", s.httpServer.Addr)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	shutdownTimeout, err := config.DurationOrDefault(s.cfg.ShutdownTimeout, config.DefaultServerShutdownTimeout)
	if err != nil {
		shutdownTimeout = 0
	}
	if shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown API server: %w", err)
	}

	slog.Info("API server stopped")
	return nil
}

func (s *Server) Health(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return kairosErrors.Internal("API server not running")
	}
	return nil
}
