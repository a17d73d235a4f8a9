package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"hemrs/app/src/domain"
	"hemrs/app/src/infra"
)

const requestIDHeader = "X-Request-ID"

// HealthChecker reports whether the store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Services bundles what the HTTP transport calls into.
type Services struct {
	Ingest       domain.IngestService
	Measurements domain.MeasurementService
	Catalog      domain.CatalogService
	Health       HealthChecker
}

// Server exposes the HTTP transport of the ingestion pipeline.
type Server struct {
	handler http.Handler
}

// NewServer constructs an HTTP server that forwards requests to the application services.
func NewServer(services Services, logger *infra.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.Recoverer)
	router.Use(correlationID)
	router.Use(infra.HTTPMiddleware(routePattern))

	h := &handler{
		ingest:       services.Ingest,
		measurements: services.Measurements,
		catalog:      services.Catalog,
		health:       services.Health,
		logger:       logger,
	}
	registerRoutes(router, h)

	return &Server{handler: router}
}

// Router returns the configured HTTP handler for reuse in tests or external HTTP servers.
func (s *Server) Router() http.Handler {
	return s.handler
}

// ServeHTTP allows Server to satisfy the http.Handler interface directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// correlationID propagates X-Request-ID, generating one when absent.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(infra.WithCorrelationID(r.Context(), id)))
	})
}
