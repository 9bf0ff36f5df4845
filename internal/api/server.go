// Package api exposes the indexer over HTTP.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eargollo/ppfinder/internal/api/handlers"
	"github.com/eargollo/ppfinder/internal/config"
	"github.com/eargollo/ppfinder/internal/scan"
	"github.com/eargollo/ppfinder/internal/scheduler"
	"github.com/eargollo/ppfinder/internal/search"
	"github.com/eargollo/ppfinder/internal/store"
)

// Server holds the HTTP server and all handler dependencies.
type Server struct {
	addr string
	srv  *http.Server
}

// New wires all routes and returns a Server ready to Run.
// st serves the row counts of /api/status and should sit on the read-only
// pool so it doesn't contend with scan writes. sched and gatherer may be nil.
func New(
	addr string,
	cfg *config.Config,
	mgr *scan.Manager,
	searcher *search.Searcher,
	st *store.Store,
	sched *scheduler.Scheduler,
	gatherer prometheus.Gatherer,
	version string,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	statusH := &handlers.StatusHandler{Manager: mgr, Store: st, Sched: sched, Version: version}
	scansH := &handlers.ScansHandler{Manager: mgr}
	searchH := &handlers.SearchHandler{Searcher: searcher}
	configH := &handlers.ConfigHandler{Cfg: cfg, Manager: mgr, Sched: sched}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", statusH.ServeHTTP)

		r.Post("/scans", scansH.Create)
		r.Get("/scans/current", scansH.Current)
		r.Get("/scans/current/events", scansH.Events)
		r.Delete("/scans/current", scansH.Cancel)

		r.Post("/search", searchH.Search)
		r.Get("/search/schema", searchH.Schema)
		r.Get("/mods", handlers.Mods)

		r.Get("/config", configH.Get)
		r.Patch("/config", configH.Update)
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: r},
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run starts the HTTP server and blocks until ctx is cancelled. Request
// contexts derive from ctx so event streams end on shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		return s.srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
