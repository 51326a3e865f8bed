// Package httpapi exposes the search engine as a read-only JSON API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/edgard/chatmirror/internal/database"
	"github.com/edgard/chatmirror/internal/logger"
	"github.com/edgard/chatmirror/internal/search"
)

const shutdownTimeout = 10 * time.Second

// Searcher is the part of search.Engine the API serves.
type Searcher interface {
	Search(ctx context.Context, c search.Criteria) (*search.Result, error)
	Groups(ctx context.Context) ([]database.Group, error)
	FindNames(ctx context.Context, groupID int64, text string) ([]database.NamePair, error)
}

// Config holds the listener settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Location interprets bare YYYY-MM-DD dates; nil means time.Local.
	Location *time.Location
}

// Server serves /groups, /search and /names.
type Server struct {
	cfg      Config
	searcher Searcher
	logger   *slog.Logger
	router   chi.Router
}

// NewServer creates a Server and builds its routes.
func NewServer(cfg Config, searcher Searcher, log *slog.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	s := &Server{
		cfg:      cfg,
		searcher: searcher,
		logger:   log.With("component", "http_api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.HTTPMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/groups", s.handleGroups)
	r.Get("/search", s.handleSearch)
	r.Get("/names", s.handleNames)
	s.router = r
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "HTTP API listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
