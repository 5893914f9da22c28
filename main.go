package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dalfonso89/currency-rates-service/internal/api"
	"github.com/dalfonso89/currency-rates-service/internal/config"
	"github.com/dalfonso89/currency-rates-service/internal/logger"
	"github.com/dalfonso89/currency-rates-service/internal/metrics"
	"github.com/dalfonso89/currency-rates-service/internal/platform"
	"github.com/dalfonso89/currency-rates-service/internal/ratelimit"
	"github.com/dalfonso89/currency-rates-service/internal/service"
	"github.com/dalfonso89/currency-rates-service/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(cfg.LogLevel)

	shutdownCtx, stop := platform.NewShutdownContext(context.Background())
	defer stop()

	// Exactly one cache backend per process
	cacheStorage, err := storage.New(shutdownCtx, cfg, appLogger)
	if err != nil {
		appLogger.Fatalf("Failed to initialize %s cache storage: %v", cfg.StorageType, err)
	}

	// Initialize services
	serviceMetrics := metrics.New()
	provider := service.NewFallbackProvider(cfg, appLogger)
	ratesService := service.NewRatesService(cacheStorage, provider, cfg.TargetCurrencies, appLogger, serviceMetrics)
	catalog := service.NewCurrencyCatalog(provider, cfg.CatalogTTL, appLogger)
	rateLimiter := ratelimit.NewLimiter(ratelimit.SettingsFromConfig(cfg), appLogger)

	// Initialize HTTP handlers
	gin.SetMode(gin.ReleaseMode)
	handlers := api.NewHandlers(api.HandlerConfig{
		Logger:         appLogger,
		RatesService:   ratesService,
		Catalog:        catalog,
		RateLimiter:    rateLimiter,
		Metrics:        serviceMetrics,
		Storage:        cacheStorage,
		TrustedProxies: cfg.TrustedProxies,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Give outstanding requests 30 seconds to complete
	err = platform.Serve(shutdownCtx, server, 30*time.Second, appLogger,
		func() error { rateLimiter.Stop(); return nil },
		cacheStorage.Close,
	)
	if err != nil {
		appLogger.Fatalf("Server stopped with error: %v", err)
	}
}
