// Package server provides the HTTP API for shiryo.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/internal/indexer"
	"github.com/hyperjump/shiryo/internal/progress"
	"github.com/hyperjump/shiryo/internal/search"
	"github.com/hyperjump/shiryo/pkg/utils"
	"go.uber.org/zap"
)

const defaultOwnerHeader = "X-Owner"

// Server is the HTTP server for the shiryo API.
type Server struct {
	engine    *search.Engine
	indexer   *indexer.Indexer
	registry  *progress.Registry
	config    *config.ServerConfig
	dataPaths []string
	watch     *watchState
	logger    *zap.Logger
	server    *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithDataPaths sets the files and directories whose size is reported by /api/v1/status.
func WithDataPaths(paths ...string) ServerOption {
	return func(s *Server) { s.dataPaths = append(s.dataPaths, paths...) }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	registry *progress.Registry,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	opts ...ServerOption,
) *Server {
	s := &Server{
		engine:   engine,
		indexer:  idx,
		registry: registry,
		config:   cfg,
		logger:   utils.OrNop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// progress streams outlive the request timeout
	r.Get("/api/v1/ingestions/{id}/events", s.handleIngestionEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))

		r.Post("/api/v1/search", s.handleSearch)
		r.Post("/api/v1/pages", s.handlePages)
		r.Get("/api/v1/documents", s.handleListDocuments)
		r.Put("/api/v1/documents/{filename}/visibility", s.handleUpdateVisibility)
		r.Delete("/api/v1/documents/{filename}", s.handleDeleteDocument)
		r.Post("/api/v1/ingestions", s.handleCreateIngestion)
		r.Get("/api/v1/ingestions/{id}", s.handleGetIngestion)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/health", s.handleHealth)
		s.mountWatch(r)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// owner returns the caller identity set by the gateway in front of the API.
func (s *Server) owner(r *http.Request) string {
	header := s.config.OwnerHeader
	if header == "" {
		header = defaultOwnerHeader
	}
	return r.Header.Get(header)
}
