package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/assethub/assethub/pkg/api"
	"github.com/assethub/assethub/pkg/auth"
	"github.com/assethub/assethub/pkg/broker"
	"github.com/assethub/assethub/pkg/config"
	"github.com/assethub/assethub/pkg/middleware"
	"github.com/assethub/assethub/pkg/observability"
	"github.com/assethub/assethub/pkg/scheduler"
	"github.com/assethub/assethub/pkg/sso"
	"github.com/assethub/assethub/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, nil)
	logger.WithField("profile", string(cfg.Profile)).Info("starting assethub")

	metrics := observability.NewMetrics(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		fatal(logger, err, "failed to initialize tracing")
	}

	// Storage.
	store, err := postgres.NewStore(cfg.Storage, logger)
	if err != nil {
		fatal(logger, err, "failed to connect to postgres")
	}
	if err := store.Migrate(ctx); err != nil {
		fatal(logger, err, "failed to run migrations")
	}

	objects, err := postgres.NewS3Client(cfg.Storage)
	if err != nil {
		fatal(logger, err, "failed to connect to object storage")
	}

	queue, err := broker.NewQueue(cfg.Storage, logger, metrics)
	if err != nil {
		fatal(logger, err, "failed to connect to redis")
	}

	// Authorization: policy store, token resolver, request gate.
	policyStore := auth.NewPolicyStore(logger)
	if cfg.Auth.PolicyDir != "" {
		if err := policyStore.LoadDir(cfg.Auth.PolicyDir); err != nil {
			fatal(logger, err, "failed to load policy directory")
		}
		go func() {
			if err := policyStore.Watch(ctx, cfg.Auth.PolicyDir); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("policy watcher stopped")
			}
		}()
	}

	resolver := auth.NewTokenResolver(cfg.ResolverConfig(), logger, metrics)
	gate := auth.NewAuthenticator(resolver, policyStore, cfg.IdentityConfig(), logger, metrics)

	var rateLimiter *middleware.RateLimiter
	if cfg.Server.RateLimitEnabled {
		rateLimiter = middleware.NewRateLimiter(queue.Client(), middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Server.RateLimitRequests,
			Window:            cfg.Server.RateLimitWindow,
		}, logger)
	}

	apiServer := api.NewServer(api.ServerOptions{
		Store:       store,
		ObjectStore: objects,
		Queue:       queue,
		Gate:        gate,
		RateLimiter: rateLimiter,
		Logger:      logger,
		Metrics:     metrics,
	})

	var apiHandler http.Handler
	if otelProviders != nil {
		apiHandler = apiServer.RouterWithTracing(otelProviders.TracerProvider)
	} else {
		apiHandler = apiServer.Router()
	}

	// Root router: browser login flow beside the API.
	root := mux.NewRouter()
	if !cfg.Auth.DisableTokenVerification {
		issuer := sso.IssuerFromDiscoveryURL(cfg.Auth.OIDCDiscoveryURL)
		provider, err := sso.NewProvider(ctx, sso.Config{
			IssuerURL:    issuer,
			ClientID:     cfg.Auth.OIDCClientID,
			ClientSecret: cfg.Auth.OIDCClientSecret,
			RedirectURL:  cfg.Auth.OIDCRedirectURL,
		}, logger)
		if err != nil {
			fatal(logger, err, "failed to initialize SSO provider")
		}
		sso.NewHandlers(provider, logger).RegisterRoutes(root)
	} else {
		logger.Warn("token verification disabled, SSO login flow not mounted")
	}
	root.PathPrefix("/api/v1").Handler(apiHandler)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes.
	healthChecker := observability.NewHealthChecker(store.DB(), queue.Client())
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", healthChecker.Liveness)
	healthMux.HandleFunc("/readyz", healthChecker.Readiness)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("health server failed")
		}
	}()

	// Background sweeps.
	sweeper, err := scheduler.New(cfg.Scheduler, store, logger)
	if err != nil {
		fatal(logger, err, "failed to build scheduler")
	}
	sweeper.Start()

	// Workflow job consumer.
	go func() {
		if err := queue.Consume(ctx, jobHandler(store, logger)); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("job consumer stopped")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
		cancel() // stop consumer and policy watcher
		sweeper.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(healthServer.Shutdown)
	shutdown.RegisterShutdownFunc(func(context.Context) error { return queue.Close() })
	shutdown.RegisterShutdownFunc(func(context.Context) error { return store.Close() })
	shutdown.RegisterShutdownFunc(otelProviders.Shutdown)

	go func() {
		logger.WithField("addr", server.Addr).Info("api server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, err, "api server failed")
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
	}
}

func fatal(logger *observability.Logger, err error, message string) {
	logger.WithError(err).Error(message)
	os.Exit(1)
}
