package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dalfonso89/currency-rates-service/internal/logger"
	"github.com/dalfonso89/currency-rates-service/internal/metrics"
	"github.com/dalfonso89/currency-rates-service/internal/models"
	"github.com/dalfonso89/currency-rates-service/internal/storage"
)

// RatesService holds the process-wide dependencies of the retrieval pipeline
type RatesService struct {
	storage          storage.CacheStorage
	provider         RatesProvider
	targetCurrencies map[string]struct{}
	logger           logger.Logger
	metrics          *metrics.Metrics
}

// NewRatesService creates a service restricted to targetCurrencies. metrics may be nil.
func NewRatesService(cacheStorage storage.CacheStorage, provider RatesProvider, targetCurrencies []string, log logger.Logger, serviceMetrics *metrics.Metrics) *RatesService {
	return &RatesService{
		storage:          cacheStorage,
		provider:         provider,
		targetCurrencies: models.CurrencySet(targetCurrencies),
		logger:           log,
		metrics:          serviceMetrics,
	}
}

// StorageKind reports the active cache backend
func (ratesService *RatesService) StorageKind() storage.Kind {
	return ratesService.storage.Kind()
}

// Retriever builds the per-request retriever for currency on forDate.
// A zero forDate means today in UTC.
func (ratesService *RatesService) Retriever(currency string, forDate time.Time) *RatesRetriever {
	if forDate.IsZero() {
		forDate = time.Now().UTC()
	}
	currency = strings.ToLower(currency)
	date := models.NewDate(forDate)

	return &RatesRetriever{
		service:  ratesService,
		currency: currency,
		forDate:  date.Time,
		logger: ratesService.logger.WithFields(logger.Fields{
			"currency": currency,
			"date":     date.String(),
			"storage":  ratesService.storage.Kind().String(),
		}),
	}
}

// GetCurrencyInfo is a shortcut for Retriever(currency, forDate).GetCurrencyInfo(ctx)
func (ratesService *RatesService) GetCurrencyInfo(ctx context.Context, currency string, forDate time.Time) ([]byte, error) {
	return ratesService.Retriever(currency, forDate).GetCurrencyInfo(ctx)
}

// RatesRetriever runs the cache-aside pipeline once for one currency and date
type RatesRetriever struct {
	service  *RatesService
	currency string
	forDate  time.Time
	logger   logger.Logger
}

// GetCurrencyInfo returns the serialized CurrencyInfo, from the cache when
// present, otherwise from the provider, storing the result before returning it.
// Concurrent misses for the same key may each fetch and store; the last write wins.
func (retriever *RatesRetriever) GetCurrencyInfo(ctx context.Context) ([]byte, error) {
	cached, found, err := retriever.readFromCache(ctx)
	if err != nil {
		return nil, err
	}
	if found {
		return cached, nil
	}

	return retriever.fetchAndCache(ctx)
}

func (retriever *RatesRetriever) readFromCache(ctx context.Context) ([]byte, bool, error) {
	cacheStorage := retriever.service.storage
	key := cacheStorage.Key(retriever.forDate, retriever.currency)

	payload, found, err := cacheStorage.Fetch(ctx, key)
	if err != nil {
		retriever.countLookup(metrics.CacheErr)
		retriever.logger.WithFields(logger.Fields{"key": key}).Errorf("Cache fetch failed: %v", err)
		return nil, false, retriever.storageFailure(err)
	}

	if found {
		retriever.countLookup(metrics.CacheHit)
		retriever.logger.WithFields(logger.Fields{"key": key}).Debug("Cache hit")
		return payload, true, nil
	}

	retriever.countLookup(metrics.CacheMiss)
	retriever.logger.WithFields(logger.Fields{"key": key}).Debug("Cache miss")
	return nil, false, nil
}

func (retriever *RatesRetriever) fetchAndCache(ctx context.Context) ([]byte, error) {
	info, err := retriever.fetchCurrencyInfo(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(info)
	if err != nil {
		return nil, &ServiceError{Type: ErrorTypeUnknown, Message: "failed to encode currency info", Cause: err}
	}

	// the provider may answer for a canonicalized date, so the key follows the result
	cacheStorage := retriever.service.storage
	key := cacheStorage.Key(info.Date.Time, info.Currency)

	stored, err := cacheStorage.Store(ctx, key, payload)
	if err != nil {
		retriever.countStore(metrics.CacheErr)
		retriever.logger.WithFields(logger.Fields{"key": key}).Errorf("Cache store failed: %v", err)
		return nil, retriever.storageFailure(err)
	}

	retriever.countStore("ok")
	retriever.logger.WithFields(logger.Fields{"key": key, "values": len(info.Values)}).Debug("Cached currency info")
	return stored, nil
}

func (retriever *RatesRetriever) fetchCurrencyInfo(ctx context.Context) (models.CurrencyInfo, error) {
	startTime := time.Now()
	raw, err := retriever.service.provider.GetRates(ctx, retriever.currency, retriever.forDate)
	if err != nil {
		return models.CurrencyInfo{}, retriever.providerFailure(err, startTime)
	}
	retriever.observeFetch(metrics.ProviderSuccess, startTime)

	info, err := models.ShapeCurrencyInfo(raw, retriever.currency, retriever.service.targetCurrencies)
	if err != nil {
		retriever.logger.Errorf("Provider returned unusable data: %v", err)
		return models.CurrencyInfo{}, &ServiceError{
			Type:    ErrorTypeMalformedDate,
			Message: "provider returned a malformed date",
			Cause:   err,
		}
	}
	return info, nil
}

func (retriever *RatesRetriever) providerFailure(err error, startTime time.Time) error {
	switch classifyError(err) {
	case ErrorTypeNotFound:
		retriever.observeFetch(metrics.ProviderNotFound, startTime)
		retriever.logger.Info("Provider has no rates for request")
		return &ServiceError{Type: ErrorTypeNotFound, Message: NotFoundMessage, Cause: err}
	case ErrorTypeContextCancelled:
		retriever.observeFetch(metrics.ProviderFailure, startTime)
		return &ServiceError{Type: ErrorTypeContextCancelled, Message: "request context cancelled", Cause: err}
	default:
		retriever.observeFetch(metrics.ProviderFailure, startTime)
		retriever.logger.Warnf("Provider request failed: %v", err)
		return &ServiceError{Type: ErrorTypeProviderFailed, Message: "provider request failed", Cause: err}
	}
}

func (retriever *RatesRetriever) storageFailure(err error) error {
	if classifyError(err) == ErrorTypeContextCancelled {
		return &ServiceError{Type: ErrorTypeContextCancelled, Message: "request context cancelled", Cause: err}
	}
	return &ServiceError{
		Type:    ErrorTypeStorage,
		Message: fmt.Sprintf("%s cache storage unavailable", retriever.service.storage.Kind()),
		Cause:   err,
	}
}

func (retriever *RatesRetriever) countLookup(result string) {
	if retriever.service.metrics == nil {
		return
	}
	retriever.service.metrics.CacheLookupsTotal.WithLabelValues(retriever.service.storage.Kind().String(), result).Inc()
}

func (retriever *RatesRetriever) countStore(result string) {
	if retriever.service.metrics == nil {
		return
	}
	retriever.service.metrics.CacheStoresTotal.WithLabelValues(retriever.service.storage.Kind().String(), result).Inc()
}

func (retriever *RatesRetriever) observeFetch(outcome string, startTime time.Time) {
	if retriever.service.metrics == nil {
		return
	}
	retriever.service.metrics.ProviderFetchTotal.WithLabelValues(outcome).Inc()
	retriever.service.metrics.ProviderFetchSecond.WithLabelValues(outcome).Observe(time.Since(startTime).Seconds())
}
