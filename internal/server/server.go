// Package server exposes field resolution, category runs and equipment
// categorization over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/listing-resolver/internal/equipment"
	"github.com/sells-group/listing-resolver/internal/model"
	"github.com/sells-group/listing-resolver/internal/orchestrator"
	"github.com/sells-group/listing-resolver/internal/resolve"
	"github.com/sells-group/listing-resolver/internal/store"
)

// Resolver resolves single fields. *resolve.Agent implements it.
type Resolver interface {
	Config() resolve.Config
	ResolveWith(ctx context.Context, req model.FieldRequest, fc model.FieldContext, cfg resolve.Config) (*resolve.Result, error)
}

// CategoryRunner runs category batches and streams.
// *orchestrator.Orchestrator implements it.
type CategoryRunner interface {
	ResolveCategoryWith(ctx context.Context, category string, fields []string, fc model.FieldContext, cfg resolve.Config) (*model.CategoryReport, error)
	ResolveCategoryStreamWith(ctx context.Context, fields []string, fc model.FieldContext, cfg resolve.Config) <-chan orchestrator.Event
}

// Catalog provides field requests and category membership.
type Catalog interface {
	Request(name string) (model.FieldRequest, bool)
	Category(name string) ([]string, bool)
}

// Categorizer sorts equipment items. *equipment.Categorizer implements it.
type Categorizer interface {
	CategorizeAll(ctx context.Context, items []string) []equipment.Result
}

// Deps are the collaborators the handlers call. Store may be nil, which
// disables document lookups and persistence.
type Deps struct {
	Agent        Resolver
	Orchestrator CategoryRunner
	Catalog      Catalog
	Equipment    Categorizer
	Store        store.Store
}

// Config holds server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Server is the HTTP front end of the resolver.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
}

// New creates a Server and builds its routes.
func New(cfg Config, deps Deps) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	s := &Server{cfg: cfg, deps: deps}
	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// streams run as long as the category takes
		r.Post("/categories/{category}/stream", s.handleCategoryStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
			r.Post("/resolve", s.handleResolve)
			r.Post("/categories/{category}/resolve", s.handleCategory)
			r.Post("/equipment/categorize", s.handleEquipment)
		})
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured port until Shutdown.
func (s *Server) Start() error {
	zap.L().Info("starting server", zap.Int("port", s.cfg.Port))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
