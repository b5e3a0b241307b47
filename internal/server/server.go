// Package server exposes the review API over HTTP: listing a campaign's
// changesets and recording approve and reject decisions.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/havenly/unitwise/pkg/apply"
	"github.com/havenly/unitwise/pkg/logging"
	"github.com/havenly/unitwise/pkg/store"
)

// Server serves the review API.
type Server struct {
	store   store.Store
	applier apply.Applier
	logger  *zerolog.Logger
	httpSrv *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a Server bound to addr.
func New(st store.Store, addr string, opts ...Option) *Server {
	s := &Server{
		store:  st,
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.applier = apply.New(st, apply.WithLogger(s.logger))
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the chi router with the full route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/campaigns/{campaign}/changesets", s.handleChangesets)
		r.Route("/changes", func(r chi.Router) {
			r.Post("/approve", s.handleApproveChange)
			r.Post("/reject", s.handleRejectChange)
		})
		r.Route("/deletions", func(r chi.Router) {
			r.Post("/approve", s.handleApproveDeletion)
			r.Post("/reject", s.handleRejectDeletion)
		})
	})

	return r
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("Review API listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("Shutting down review API")
	return s.httpSrv.Shutdown(shutdownCtx)
}

// requestLogger stamps a request-scoped logger into the context and logs
// one line per request. Handlers and the pipelines they invoke pick the
// logger back up through logging.Ctx.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLogger := s.logger.With().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Logger()
		r = r.WithContext(logging.WithLogger(r.Context(), &reqLogger))
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		reqLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
