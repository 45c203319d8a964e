// Package api provides the HTTP API server and handlers for the Stacks
// catalog and its CSV import pipeline.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stacksapp/stacks-server/internal/service"
	"github.com/stacksapp/stacks-server/internal/store"
)

// Version reported by the OpenAPI document and the health endpoint.
const Version = "1.0.0"

// Server holds dependencies for HTTP handlers.
type Server struct {
	store         *store.Store
	importService *service.ImportService
	bookService   *service.BookService
	router        *chi.Mux
	api           huma.API
	uploadLimiter *RateLimiter
	logger        *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(st *store.Store, importService *service.ImportService, bookService *service.BookService, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	humaConfig := huma.DefaultConfig("Stacks API", Version)
	RegisterErrorHandler()

	s := &Server{
		store:         st,
		importService: importService,
		bookService:   bookService,
		router:        router,
		uploadLimiter: NewRateLimiter(30, time.Minute, 10),
		logger:        logger,
	}

	// chi requires the full middleware stack before any route is
	// mounted, and humachi.New registers the OpenAPI routes.
	s.setupMiddleware()
	s.api = humachi.New(router, humaConfig)
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// setupRoutes configures all HTTP routes. Most endpoints go through
// huma; the upload and report download endpoints are plain chi handlers
// because huma does not handle multipart forms or CSV streaming well.
func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerImportRoutes()
	s.registerBookRoutes()

	s.router.With(RateLimitMiddleware(s.uploadLimiter, s.logger)).
		Post("/api/v1/admin/imports", s.handleCreateImport)
	s.router.Get("/api/v1/admin/imports/{id}/reports/{kind}", s.handleDownloadReport)
}
