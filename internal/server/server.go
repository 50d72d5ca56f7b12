// Package server exposes the gateway over HTTP: chat completions (unary
// and SSE streaming) and model listing, wired to the execution pipeline.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/duonganhthu43/ai-gateway/internal/provider"
	"github.com/duonganhthu43/ai-gateway/internal/storage"
	"github.com/duonganhthu43/ai-gateway/internal/types"
)

// ModelLister lists the models available across providers.
type ModelLister interface {
	ListModels(ctx context.Context) (*types.ModelList, error)
}

// Server is the gateway HTTP server.
type Server struct {
	router   chi.Router
	resolver provider.Resolver
	lister   ModelLister
	store    storage.ThreadStore
	logger   *slog.Logger
	http     *http.Server
}

// Option configures the server.
type Option func(*Server)

// WithThreadStore enables thread persistence for requests carrying a
// thread id.
func WithThreadStore(store storage.ThreadStore) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithModelLister enables the models listing endpoint.
func WithModelLister(lister ModelLister) Option {
	return func(s *Server) {
		s.lister = lister
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a server listening on port, routing completions through
// resolver.
func New(port int, resolver provider.Resolver, opts ...Option) *Server {
	s := &Server{
		resolver: resolver,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "ai-gateway")
	})

	r.Post("/v1/chat/completions", s.handleChatCompletion)
	r.Get("/v1/models", s.handleListModels)

	s.router = r
	s.http = &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     r,
		ReadTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
