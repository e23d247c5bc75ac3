package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/modelgate/modelgate/internal/accounting"
	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/database"
	"github.com/modelgate/modelgate/internal/logger"
	"github.com/modelgate/modelgate/internal/metrics"
	"github.com/modelgate/modelgate/internal/orchestrator"
	"github.com/modelgate/modelgate/internal/providers"
	"github.com/modelgate/modelgate/internal/router"
	"github.com/modelgate/modelgate/internal/services/cache"
	"github.com/modelgate/modelgate/internal/services/retry"
	"github.com/modelgate/modelgate/pkg/circuitbreaker"
)

var version = "dev"

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// The database is optional: without it the gateway still proxies,
	// it just bills zero and drops request logs.
	var pricingLookup accounting.PricingLookup = accounting.NoopPricingLookup{}
	var logSink accounting.RequestLogSink = accounting.NoopRequestLogSink{}

	dbAvailable := false
	if cfg.Database.URL != "" {
		dbConfig := &database.Config{
			DSN:             cfg.Database.URL,
			MaxConnections:  cfg.Database.MaxConnections,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}

		if err := database.Initialize(dbConfig); err != nil {
			log.Warn("Failed to initialize database, accounting disabled", zap.Error(err))
		} else {
			defer database.Close()
			pricingLookup = database.NewPricingStore(database.GetDB())
			logSink = database.NewRequestLogStore(database.GetDB())
			dbAvailable = true
		}
	} else {
		log.Warn("No database configured, accounting disabled")
	}

	// Redis is optional too; it only accelerates pricing lookups.
	var redisClient *redis.Client
	if dbAvailable && cfg.Redis.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Upstream.HealthCheckTimeout)
		redisClient, err = cache.Connect(ctx, &cache.Config{
			RedisURL: cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.PricingTTL,
		})
		cancel()
		if err != nil {
			log.Warn("Failed to connect to Redis, pricing cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}
	if redisClient != nil {
		pricingLookup = cache.NewPricingCache(redisClient, pricingLookup, cfg.Redis.PricingTTL, log)
	}

	adapter := providers.NewOpenAIAdapter("openai", providers.Config{
		APIKey:             cfg.Upstream.APIKey,
		BaseURL:            cfg.Upstream.BaseURL,
		Timeout:            cfg.Upstream.Timeout,
		HealthCheckTimeout: cfg.Upstream.HealthCheckTimeout,
		MaxConnsPerServer:  cfg.Upstream.MaxConnsPerServer,
		ConnLifetime:       cfg.Upstream.ConnLifetime,
		UseHTTP2:           cfg.Upstream.UseHTTP2,
	}, log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gatewayMetrics := metrics.New(registry)

	breakers := circuitbreaker.NewManager(
		cfg.Resilience.CircuitBreakerThreshold,
		cfg.Resilience.CircuitBreakerCooldown,
	)
	retryConfig := &retry.Config{
		MaxAttempts: cfg.Resilience.MaxRetries,
		BaseDelay:   cfg.Resilience.RetryBaseDelay,
		MaxJitter:   cfg.Resilience.RetryMaxJitter,
	}
	policy := orchestrator.NewResiliencePolicy(retryConfig, breakers, log)

	selector := orchestrator.NewModelSelector(
		cfg.Routing.DefaultModel,
		cfg.Routing.LargeContextModel,
		cfg.Routing.StandardContextLimit,
		cfg.Routing.LargeContextLimit,
	)
	chain := orchestrator.NewFallbackChain(cfg.Routing.FallbackChain)
	accountant := accounting.NewAccountant(pricingLookup, logSink, log)

	orch := orchestrator.New(log, adapter, selector, chain, policy, accountant, gatewayMetrics, orchestrator.Options{
		MaxAttempts:        cfg.Routing.MaxAttempts,
		DefaultTemperature: cfg.Routing.DefaultTemperature,
		DefaultMaxTokens:   cfg.Routing.DefaultMaxTokens,
	})

	handler := router.New(router.Dependencies{
		Config:       cfg,
		Logger:       log,
		Orchestrator: orch,
		Policy:       policy,
		Registry:     registry,
		Version:      version,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Gateway listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("default_model", cfg.Routing.DefaultModel),
			zap.Strings("fallback_chain", cfg.Routing.FallbackChain))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Forced shutdown", zap.Error(err))
	}
}
