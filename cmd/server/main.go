package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"letknow-gateway/internal/clients/letknow"
	redisclient "letknow-gateway/internal/clients/redis"
	"letknow-gateway/internal/config"
	healthhandler "letknow-gateway/internal/handlers/health"
	paymenthandler "letknow-gateway/internal/handlers/payment"
	"letknow-gateway/internal/logging"
	"letknow-gateway/internal/middleware"
	"letknow-gateway/internal/models"
	"letknow-gateway/internal/repository/deposit"
	"letknow-gateway/internal/repository/storefront_registry"
	"letknow-gateway/internal/services/auth"
	"letknow-gateway/internal/services/circuitbreaker"
	"letknow-gateway/internal/services/idempotency"
	"letknow-gateway/internal/services/metrics"
	paymentservice "letknow-gateway/internal/services/payment"
	"letknow-gateway/internal/services/storefront"
	"letknow-gateway/internal/services/tracing"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const providerDependency = "letknow"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("LetKnow gateway stopped", zap.Error(err))
	}
	logger.Info("LetKnow gateway stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProvider, shutdownTracing := tracing.NewProvider(cfg.Tracing)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
	}()
	tracingService := tracing.NewService(cfg.Tracing.ServiceName, tracerProvider)

	db, err := openPostgres(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := redisclient.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()
	rdb := redisClient.GetClient()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsService := metrics.NewService(registry)

	deposits := deposit.NewRepository(db, logger)
	if err := deposits.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	storefrontRepo := storefront_registry.NewRepository(db, logger)
	if err := storefrontRepo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	breaker := circuitbreaker.New(providerDependency, cfg.CircuitBreaker, circuitbreaker.Options{
		IsFailure: paymentservice.IsProviderOutage,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metricsService.SetCircuitBreakerState(name, int(to))
			logger.Warn("circuit breaker state changed",
				zap.String("dependency", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	metricsService.SetCircuitBreakerState(providerDependency, int(circuitbreaker.StateClosed))

	gateway := paymentservice.NewGateway(
		letknow.NewClient(cfg.LetKnow, letknow.NewSigner(), logger),
		breaker,
		deposits,
		redisclient.NewEventPublisher(rdb, cfg.Streams.MaxLen, logger),
		idempotency.NewService(rdb, cfg.Redis.KeyPrefix, cfg.Replay.OutcomeTTL, logger),
		metricsService,
		tracingService,
		paymentservice.Config{
			Credentials: models.Credentials{
				ShopID:  cfg.LetKnow.ShopID,
				ShopKey: cfg.LetKnow.ShopKey,
			},
			StorefrontID: cfg.Storefront.ID,
			EventStream:  cfg.Streams.PaymentEvents,
		},
		logger,
	)

	storefronts := storefront.NewDBRegistry(
		storefront.NewRegistryFromConfig(cfg.Storefront, logger),
		storefrontRepo,
		rdb,
		cfg.Redis.KeyPrefix,
		cfg.Storefront.CacheTTL,
		logger,
	)
	authService := auth.NewStorefrontAuthService(storefronts, logger)
	rateLimiter := auth.NewRateLimitService(rdb, cfg.RateLimit, metricsService, logger)

	trustedProxies, err := middleware.NewTrustedProxyList(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	router.Use(
		gin.Recovery(),
		middleware.TracingMiddleware(tracingService),
		middleware.MetricsMiddleware(metricsService),
	)

	healthhandler.NewHandler(map[string]healthhandler.Check{
		"postgres": db.PingContext,
		"redis":    redisClient.Ping,
	}, logger).RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1", middleware.AuthMiddlewareWithConfig(authService, rateLimiter, logger, middleware.AuthMiddlewareConfig{
		TrustedProxyChecker: trustedProxies,
	}))
	paymenthandler.NewHandler(gateway, logger).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("LetKnow gateway starting",
			zap.String("addr", srv.Addr),
			zap.String("endpoint", cfg.LetKnow.Endpoint),
			zap.String("storefront_id", cfg.Storefront.ID),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openPostgres(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnectionMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
