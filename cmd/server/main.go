package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	redisclient "egiro-gateway/internal/clients/redis"
	"egiro-gateway/internal/config"
	egirohandler "egiro-gateway/internal/handlers/egiro"
	"egiro-gateway/internal/logging"
	"egiro-gateway/internal/middleware"
	"egiro-gateway/internal/services/canonical"
	"egiro-gateway/internal/services/circuitbreaker"
	"egiro-gateway/internal/services/client"
	"egiro-gateway/internal/services/dispatch"
	"egiro-gateway/internal/services/egiro"
	"egiro-gateway/internal/services/metrics"
	"egiro-gateway/internal/services/pgp"
	"egiro-gateway/internal/services/ratelimit"
	"egiro-gateway/internal/services/reference"
	"egiro-gateway/internal/services/replay"
	"egiro-gateway/internal/services/tracing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging, cfg.Tracing.ServiceName, cfg.App.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gateway stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	shutdownTracing := tracing.Setup(cfg.Tracing.Enabled, cfg.Tracing.SampleRate)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	metricsService := metrics.NewService(cfg.Tracing.ServiceName, cfg.App.Environment)

	swept := pgp.Sweep(cfg.Keyring.BaseDir, cfg.Keyring.StaleAfter, logger)
	metricsService.RecordKeyringsSwept(swept)

	var err error
	templates := canonical.NewBuiltinRegistry()
	if cfg.App.TemplatesPath != "" {
		if templates, err = canonical.LoadRegistry(cfg.App.TemplatesPath); err != nil {
			return fmt.Errorf("load templates: %w", err)
		}
	}

	profiles, err := client.LoadFileRegistry(cfg.App.ClientsConfigPath, cfg.App.Environment, templates, logger)
	if err != nil {
		return fmt.Errorf("load clients: %w", err)
	}

	healthChecks := map[string]egirohandler.Pinger{}
	var rdb *redisclient.Client
	if cfg.Redis.Enabled() {
		if rdb, err = redisclient.NewClient(cfg.Redis, logger); err != nil {
			return err
		}
		defer rdb.Close()
		healthChecks["redis"] = rdb
	}

	var genOpts []reference.Option
	if cfg.Replay.Enabled {
		var guard replay.Guard
		if rdb != nil {
			guard = replay.NewRedisGuard(rdb, cfg.Redis.KeyPrefix, cfg.Replay.TTL, logger)
		} else {
			logger.Info("redis not configured, identifier replay guard is process-local")
			guard = replay.NewMemoryGuard(cfg.Replay.TTL)
		}
		genOpts = append(genOpts, reference.WithReserver(replay.WithMetrics(guard, metricsService)))
	}
	generator := reference.NewGenerator(logger, genOpts...)

	breakers := circuitbreaker.NewSet(circuitbreaker.Config{
		Enabled:             cfg.CircuitBreaker.Enabled,
		FailureThreshold:    cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold:    cfg.CircuitBreaker.SuccessThreshold,
		Timeout:             cfg.CircuitBreaker.Timeout,
		MaxRequestsHalfOpen: cfg.CircuitBreaker.MaxRequestsHalfOpen,
	}, func(name string, from, to circuitbreaker.State) {
		logger.Warn("counterparty circuit changed state",
			zap.String("flow", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		metricsService.SetCircuitBreakerState(name, int(to))
	})

	dispatcher, err := dispatch.NewDispatcher(dispatch.Config{
		Timeout: cfg.Aggregator.DispatchTimeout,
		TLS: dispatch.TLSConfig{
			CertPath: cfg.MTLS.CertPath,
			KeyPath:  cfg.MTLS.KeyPath,
			CAPath:   cfg.MTLS.CAPath,
		},
	}, breakers, logger)
	if err != nil {
		return err
	}

	engine := egiro.NewService(
		egiro.Endpoints{
			AuthorizeCreationURL: cfg.Aggregator.AuthorizeCreationURL,
			ConnectivityTestURL:  cfg.Aggregator.ConnectivityTestURL,
			EddaStatusURL:        cfg.Aggregator.EddaStatusURL,
			PublicKeyPath:        cfg.Aggregator.PublicKeyPath,
			PublicKeyFingerprint: cfg.Aggregator.PublicKeyFingerprint,
		},
		profiles,
		templates,
		generator,
		pgp.NewProvider(cfg.Keyring.BaseDir, logger),
		pgp.FileKeyLoader{},
		dispatcher,
		metricsService,
		tracing.NewService(cfg.Tracing.ServiceName),
		logger,
	)

	router, err := newRouter(cfg, engine, profiles, newRateLimiter(cfg, rdb, logger), metricsService, healthChecks, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("eGIRO gateway listening",
			zap.String("addr", server.Addr),
			zap.String("environment", cfg.App.Environment),
			zap.Strings("clients", profiles.Slugs()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	metricsService.SetServiceAvailability(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	metricsService.SetServiceAvailability(false)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}

func newRouter(
	cfg *config.Config,
	engine egirohandler.Engine,
	profiles middleware.ProfileProvider,
	limiter middleware.RateLimiter,
	metricsService *metrics.Service,
	healthChecks map[string]egirohandler.Pinger,
	logger *zap.Logger,
) (*gin.Engine, error) {
	proxies, err := middleware.NewTrustedProxyList(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	tenantConfig := middleware.TenantMiddlewareConfig{
		TrustedProxyChecker: proxies,
		RateLimiter:         limiter,
		Recorder:            metricsService,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.TraceMiddleware(), middleware.MetricsMiddleware(metricsService))

	router.GET("/healthz", egirohandler.NewHealthHandler(healthChecks).HandleHealth)
	router.GET("/metrics", gin.WrapH(metricsService.Handler()))

	api := router.Group("/", middleware.TenantMiddleware(profiles, logger, tenantConfig))
	egirohandler.NewHandler(engine, logger).RegisterRoutes(api)
	return router, nil
}

// newRateLimiter shares counters through Redis when it is configured and
// falls back to per-process token buckets otherwise.
func newRateLimiter(cfg *config.Config, rdb *redisclient.Client, logger *zap.Logger) middleware.RateLimiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	if rdb != nil {
		return ratelimit.NewRedisLimiter(rdb, cfg.Redis.KeyPrefix, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.Window, logger)
	}
	return middleware.NewTenantRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
}
