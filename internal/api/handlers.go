package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dalfonso89/currency-rates-service/internal/logger"
	"github.com/dalfonso89/currency-rates-service/internal/metrics"
	"github.com/dalfonso89/currency-rates-service/internal/middleware"
	"github.com/dalfonso89/currency-rates-service/internal/models"
	"github.com/dalfonso89/currency-rates-service/internal/ratelimit"
	"github.com/dalfonso89/currency-rates-service/internal/service"
	"github.com/dalfonso89/currency-rates-service/internal/storage"
)

const version = "1.0.0"

// CurrencyInfoGetter serves the serialized rates of one currency on one date
type CurrencyInfoGetter interface {
	GetCurrencyInfo(ctx context.Context, currency string, forDate time.Time) ([]byte, error)
	StorageKind() storage.Kind
}

// CurrencyChecker reports whether a currency code is known
type CurrencyChecker interface {
	Exists(ctx context.Context, currency string) (bool, error)
}

// pinger is implemented by storage backends that can report liveness
type pinger interface {
	Ping(ctx context.Context) error
}

// HandlerConfig holds configuration for handlers
type HandlerConfig struct {
	Logger       logger.Logger
	RatesService CurrencyInfoGetter
	Catalog      CurrencyChecker
	RateLimiter  *ratelimit.Limiter
	Metrics      *metrics.Metrics
	// Storage is pinged by /health when it supports Ping
	Storage storage.CacheStorage
	// TrustedProxies may set X-Forwarded-For; nil trusts no proxy
	TrustedProxies []string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	logger       logger.Logger
	ratesService CurrencyInfoGetter
	catalog      CurrencyChecker
	rateLimiter  *ratelimit.Limiter
	metrics      *metrics.Metrics
	storage      storage.CacheStorage
	proxies      []string
	startTime    time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(handlerConfig HandlerConfig) *Handlers {
	return &Handlers{
		logger:       handlerConfig.Logger,
		ratesService: handlerConfig.RatesService,
		catalog:      handlerConfig.Catalog,
		rateLimiter:  handlerConfig.RateLimiter,
		metrics:      handlerConfig.Metrics,
		storage:      handlerConfig.Storage,
		proxies:      handlerConfig.TrustedProxies,
		startTime:    time.Now(),
	}
}

// SetupRoutes configures all the routes using Gin
func (handlers *Handlers) SetupRoutes() *gin.Engine {
	router := gin.New()
	if err := router.SetTrustedProxies(handlers.proxies); err != nil {
		handlers.logger.Errorf("Invalid trusted proxies %v, trusting none: %v", handlers.proxies, err)
		_ = router.SetTrustedProxies(nil)
	}

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(handlers.logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	if handlers.metrics != nil {
		router.Use(middleware.Metrics(handlers.metrics))
	}

	router.GET("/health", handlers.HealthCheck)
	if handlers.metrics != nil {
		router.GET("/metrics", gin.WrapH(handlers.metrics.Handler()))
	}

	rates := router.Group("/rates")
	if handlers.rateLimiter != nil {
		rates.Use(handlers.rateLimiter.Middleware())
	}
	{
		rates.GET("/:currency", handlers.GetRates)
		rates.GET("/:currency/:date", handlers.GetRates)
	}

	return router
}

// HealthCheck reports liveness and the active storage backend, answering 503 when the backend is down
func (handlers *Handlers) HealthCheck(c *gin.Context) {
	healthStatus := "healthy"
	storageKind := handlers.ratesService.StorageKind().String()

	statusCode := http.StatusOK

	if backend, ok := handlers.storage.(pinger); ok {
		if err := backend.Ping(c.Request.Context()); err != nil {
			healthStatus = "unhealthy"
			statusCode = http.StatusServiceUnavailable
			handlers.logger.Warnf("Storage health check failed: %v", err)
		}
	}

	c.JSON(statusCode, models.HealthCheck{
		Status:    healthStatus,
		Timestamp: time.Now(),
		Version:   version,
		Uptime:    time.Since(handlers.startTime).String(),
		Storage:   storageKind,
	})
}

// GetRates serves the rates of :currency on :date, today in UTC when :date is absent
func (handlers *Handlers) GetRates(c *gin.Context) {
	requestContext := c.Request.Context()
	currency := strings.ToLower(c.Param("currency"))

	var forDate time.Time
	if rawDate := c.Param("date"); rawDate != "" {
		parsed, err := models.ParseDate(rawDate)
		if err != nil {
			handlers.writeErrorResponse(c, http.StatusUnprocessableEntity, "invalid date", "The date specified must be in ISO format")
			return
		}
		forDate = parsed.Time
	}

	if handlers.catalog != nil {
		known, err := handlers.catalog.Exists(requestContext, currency)
		if err != nil {
			handlers.logger.WithFields(logger.Fields{"currency": currency}).Errorf("Currency catalog unavailable: %v", err)
			handlers.writeErrorResponse(c, http.StatusServiceUnavailable, "currency catalog unavailable", "Unable to validate the currency, try again later")
			return
		}
		if !known {
			handlers.writeErrorResponse(c, http.StatusBadRequest, "unknown currency", fmt.Sprintf("Unknown '%s' currency, try another one.", currency))
			return
		}
	}

	payload, err := handlers.ratesService.GetCurrencyInfo(requestContext, currency, forDate)
	if err != nil {
		handlers.writeServiceError(c, err)
		return
	}

	// cached bytes are returned unchanged
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

func (handlers *Handlers) writeServiceError(c *gin.Context, err error) {
	switch service.ErrorTypeOf(err) {
	case service.ErrorTypeNotFound:
		handlers.writeErrorResponse(c, http.StatusNotFound, "not found", service.NotFoundMessage)
	case service.ErrorTypeStorage:
		handlers.writeErrorResponse(c, http.StatusServiceUnavailable, "storage unavailable", "Rates cache is unavailable, try again later")
	case service.ErrorTypeProviderFailed, service.ErrorTypeMalformedDate:
		handlers.writeErrorResponse(c, http.StatusBadGateway, "upstream failure", "Rates provider failed to answer, try again later")
	case service.ErrorTypeContextCancelled:
		// the client is gone or the deadline passed; nobody reads this body
		handlers.writeErrorResponse(c, http.StatusGatewayTimeout, "request cancelled", err.Error())
	default:
		handlers.logger.Errorf("Unexpected error serving rates: %v", err)
		handlers.writeErrorResponse(c, http.StatusInternalServerError, "internal error", "Unexpected error")
	}
}

// writeErrorResponse writes an error response using Gin context
func (handlers *Handlers) writeErrorResponse(c *gin.Context, statusCode int, errorMessage, errorDetails string) {
	c.JSON(statusCode, models.ErrorResponse{
		Error:   errorMessage,
		Message: errorDetails,
		Code:    statusCode,
	})
}
