// Package server provides the HTTP API for the knowledge base.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/TylerDurden17/support-agent/internal/config"
	"github.com/TylerDurden17/support-agent/internal/indexer"
	"github.com/TylerDurden17/support-agent/internal/lifecycle"
	"github.com/TylerDurden17/support-agent/internal/models"
)

// KnowledgeBase is the part of lifecycle.Manager the server uses.
type KnowledgeBase interface {
	Retrieve(ctx context.Context, query string, k int) (*models.QueryResult, error)
	Rebuild(ctx context.Context) (*indexer.Report, error)
	Status(ctx context.Context) lifecycle.Status
}

// Server is the HTTP server for the retrieval API.
type Server struct {
	kb        KnowledgeBase
	config    *config.ServerConfig
	retrieval *config.RetrievalConfig
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(kb KnowledgeBase, cfg *config.ServerConfig, retrieval *config.RetrievalConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		kb:        kb,
		config:    cfg,
		retrieval: retrieval,
		logger:    logger,
	}
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed API with its middleware applied. Rebuild runs
// outside the request timeout.
func (s *Server) Handler() http.Handler {
	timeout := time.Duration(s.config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(rateLimit(s.config.RateLimit, s.config.RateBurst))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Post("/api/v1/retrieve", s.handleRetrieve)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/health", s.handleHealth)
	})
	r.Post("/api/v1/rebuild", s.handleRebuild)

	return otelhttp.NewHandler(r, "supportkb")
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start starts the HTTP server and blocks until it stops. After Stop it returns
// http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server. It is safe to call before or
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
