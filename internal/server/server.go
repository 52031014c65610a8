// Package server exposes lineage extraction over HTTP: clients POST a
// plan document and get the extracted records back. A catalog document
// loaded at startup seeds view and cache lookups and can be hot-reloaded
// when it changes on disk.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/traceline/internal/planfile"
	"github.com/leapstack-labs/traceline/internal/state"
	"github.com/leapstack-labs/traceline/pkg/catalog"
)

// Config holds server configuration.
type Config struct {
	Port int

	// CatalogPath is an optional plan document whose catalog section
	// seeds view and cache lookups for every request.
	CatalogPath string

	// Watch reloads CatalogPath when it changes on disk.
	Watch bool

	// Store persists extractions when requests ask for it. Optional.
	Store state.Store

	Logger *slog.Logger
}

// Server serves the lineage API.
type Server struct {
	port        int
	catalogPath string
	watch       bool
	store       state.Store
	logger      *slog.Logger

	mu      sync.RWMutex
	catalog *catalog.Memory
}

// New creates a server, loading the catalog document if one is
// configured.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		port:        cfg.Port,
		catalogPath: cfg.CatalogPath,
		watch:       cfg.Watch,
		store:       cfg.Store,
		logger:      logger,
	}
	if cfg.CatalogPath != "" {
		if err := s.reloadCatalog(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Handler builds the route tree. Split from Serve so tests can drive it
// through httptest.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		s.logRequests,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/lineage", s.handleLineage)
		r.Get("/statements", s.handleListStatements)
		r.Get("/statements/{id}", s.handleGetStatement)
		r.Delete("/statements/{id}", s.handleDeleteStatement)
	})
	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting lineage server", "addr", addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch && s.catalogPath != "" {
		eg.Go(func() error {
			return s.watchCatalog(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down lineage server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

// currentCatalog returns the loaded catalog, or nil when none is
// configured.
func (s *Server) currentCatalog() *catalog.Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// reloadCatalog re-decodes the catalog document. A broken document keeps
// the previous catalog in place.
func (s *Server) reloadCatalog() error {
	doc, err := planfile.DecodeFile(s.catalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	s.mu.Lock()
	s.catalog = doc.Catalog
	s.mu.Unlock()
	s.logger.Info("catalog loaded", "path", s.catalogPath, "definitions", doc.Catalog.Len())
	return nil
}

// watchCatalog reloads the catalog document when it changes.
func (s *Server) watchCatalog(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: editors replace files rather than write them
	// in place, and a watch on the old inode would go stale.
	if err := watcher.Add(filepath.Dir(s.catalogPath)); err != nil {
		s.logger.Error("failed to watch catalog", "path", s.catalogPath, "error", err)
		return nil
	}

	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.catalogPath) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				if err := s.reloadCatalog(); err != nil {
					s.logger.Error("catalog reload failed", "error", err)
				}
			})

		case err := <-watcher.Errors:
			s.logger.Error("watcher error", "error", err)
		}
	}
}
