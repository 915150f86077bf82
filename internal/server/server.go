// Package server provides the HTTP API for indexing and retrieving questions.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/qpindex/internal/config"
	"github.com/hyperjump/qpindex/internal/indexer"
	"github.com/hyperjump/qpindex/internal/retriever"
	"github.com/hyperjump/qpindex/internal/storage"
	"go.uber.org/zap"
)

// Server is the HTTP server for the question index.
type Server struct {
	indexer   *indexer.Indexer
	retriever *retriever.Retriever
	storage   storage.Storage
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	idx *indexer.Indexer,
	ret *retriever.Retriever,
	store storage.Storage,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		indexer:   idx,
		retriever: ret,
		storage:   store,
		config:    cfg,
		logger:    logger,
	}
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(corsHandler(s.config.CORSOrigins))
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}
	if s.config.MaxBodyBytes > 0 {
		r.Use(middleware.RequestSize(s.config.MaxBodyBytes))
	}
	r.Use(middleware.Compress(5))

	r.Post("/indexQuestions", s.handleIndexQuestions)
	r.Post("/retrieveContext", s.handleRetrieveContext)
	r.Post("/embedAndStore", s.handleEmbedAndStore)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
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
