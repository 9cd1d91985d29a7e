package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/assethub/assethub/pkg/auth"
	"github.com/assethub/assethub/pkg/httputil"
	"github.com/assethub/assethub/pkg/middleware"
	"github.com/assethub/assethub/pkg/observability"
)

// Server wires the authenticated HTTP surface: every route passes through the
// request gate, then its handler enforces (object, action) and queries with a
// visibility scope.
type Server struct {
	router    *mux.Router
	store     Store
	objects   ObjectStore
	queue     JobQueue
	gate      *auth.Authenticator
	rateLimit *middleware.RateLimiter
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// ServerOptions carries the collaborators the server needs.
type ServerOptions struct {
	Store       Store
	ObjectStore ObjectStore
	Queue       JobQueue
	Gate        *auth.Authenticator
	RateLimiter *middleware.RateLimiter
	Logger      *observability.Logger
	Metrics     *observability.Metrics
}

// NewServer builds the router and registers all routes.
func NewServer(opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{
		router:    mux.NewRouter(),
		store:     opts.Store,
		objects:   opts.ObjectStore,
		queue:     opts.Queue,
		gate:      opts.Gate,
		rateLimit: opts.RateLimiter,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}

	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.LoggingMiddleware(s.logger))
	s.router.Use(httputil.RecoveryMiddleware(s.logger))

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Asset routes. Listing and fetching are optional-auth: anonymous
	// callers see public assets.
	optional := v1.NewRoute().Subrouter()
	optional.Use(s.gate.Optional)
	if s.rateLimit != nil {
		// after the gate, so authenticated callers are bucketed by username
		optional.Use(s.rateLimit.Handler)
	}
	optional.HandleFunc("/assets", s.listAssets).Methods("GET")
	optional.HandleFunc("/assets/{id}", s.getAsset).Methods("GET")
	optional.HandleFunc("/assets/{id}/objects", s.listAssetObjects).Methods("GET")
	optional.HandleFunc("/assets/{id}/objects/{objectId}", s.getAssetObject).Methods("GET")

	// Everything else requires a verified, enabled identity.
	required := v1.NewRoute().Subrouter()
	required.Use(s.gate.Require)
	if s.rateLimit != nil {
		required.Use(s.rateLimit.Handler)
	}
	required.HandleFunc("/assets", s.createAsset).Methods("POST")
	required.HandleFunc("/assets/{id}", s.updateAsset).Methods("PUT")
	required.HandleFunc("/assets/{id}", s.deleteAsset).Methods("DELETE")

	required.HandleFunc("/assets/{id}/objects", s.createAssetObject).Methods("POST")
	required.HandleFunc("/assets/{id}/objects/{objectId}/download", s.downloadAssetObject).Methods("GET")
	required.HandleFunc("/assets/{id}/objects/{objectId}", s.deleteAssetObject).Methods("DELETE")

	required.HandleFunc("/access-requests", s.createAccessRequest).Methods("POST")
	required.HandleFunc("/access-requests", s.listAccessRequests).Methods("GET")
	required.HandleFunc("/access-requests/{id}", s.getAccessRequest).Methods("GET")
	required.HandleFunc("/access-requests/{id}/review", s.reviewAccessRequest).Methods("POST")

	required.HandleFunc("/jobs", s.createWorkflowJob).Methods("POST")
	required.HandleFunc("/jobs", s.listWorkflowJobs).Methods("GET")
	required.HandleFunc("/jobs/{id}", s.getWorkflowJob).Methods("GET")

	required.HandleFunc("/me/metadata", s.getUserMetadata).Methods("GET")
	required.HandleFunc("/me/metadata", s.putUserMetadata).Methods("PUT")
}

// Router exposes the configured router, wrapped with tracing and HTTP
// metrics when available.
func (s *Server) Router() http.Handler {
	var handler http.Handler = s.router
	if s.metrics != nil {
		handler = s.metrics.InstrumentHandler("api", handler)
	}
	return handler
}

// RouterWithTracing wraps Router with otelhttp.
func (s *Server) RouterWithTracing(provider trace.TracerProvider) http.Handler {
	return otelhttp.NewHandler(s.Router(), "assethub.api",
		otelhttp.WithTracerProvider(provider))
}
