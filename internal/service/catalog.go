package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dalfonso89/currency-rates-service/internal/logger"
)

// catalogLoadTimeout bounds a shared catalog load independently of the requests waiting on it
const catalogLoadTimeout = 30 * time.Second

// CurrencyCatalog answers whether a currency code is known to the provider.
// The catalog is loaded lazily, shared by all requests and reloaded after ttl.
type CurrencyCatalog struct {
	lister CurrencyLister
	ttl    time.Duration
	logger logger.Logger

	mutex      sync.RWMutex
	currencies map[string]struct{}
	expiresAt  time.Time

	loadGroup singleflight.Group
}

// NewCurrencyCatalog creates a catalog backed by lister
func NewCurrencyCatalog(lister CurrencyLister, ttl time.Duration, log logger.Logger) *CurrencyCatalog {
	return &CurrencyCatalog{
		lister: lister,
		ttl:    ttl,
		logger: log,
	}
}

// Exists reports whether currency is in the catalog
func (catalog *CurrencyCatalog) Exists(ctx context.Context, currency string) (bool, error) {
	currencies, err := catalog.load(ctx)
	if err != nil {
		return false, err
	}
	_, known := currencies[strings.ToLower(currency)]
	return known, nil
}

func (catalog *CurrencyCatalog) load(ctx context.Context) (map[string]struct{}, error) {
	if currencies, fresh := catalog.cached(); fresh {
		return currencies, nil
	}

	// concurrent cold requests share one upstream call, which outlives any single caller
	flight := catalog.loadGroup.DoChan("currencies", func() (interface{}, error) {
		if currencies, fresh := catalog.cached(); fresh {
			return currencies, nil
		}

		loadContext, cancel := context.WithTimeout(context.WithoutCancel(ctx), catalogLoadTimeout)
		defer cancel()

		listed, err := catalog.lister.GetCurrencies(loadContext)
		if err != nil {
			return nil, err
		}

		currencies := make(map[string]struct{}, len(listed))
		for code := range listed {
			currencies[strings.ToLower(code)] = struct{}{}
		}

		catalog.mutex.Lock()
		catalog.currencies = currencies
		catalog.expiresAt = time.Now().Add(catalog.ttl)
		catalog.mutex.Unlock()

		catalog.logger.Infof("Loaded %d currencies into the catalog", len(currencies))
		return currencies, nil
	})

	var result singleflight.Result
	select {
	case result = <-flight:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := result.Err; err != nil {
		catalog.mutex.RLock()
		stale := catalog.currencies
		catalog.mutex.RUnlock()
		if stale != nil {
			catalog.logger.Warnf("Currency catalog refresh failed, serving stale catalog: %v", err)
			return stale, nil
		}
		return nil, err
	}

	return result.Val.(map[string]struct{}), nil
}

// cached returns the loaded catalog and whether it is still within its ttl
func (catalog *CurrencyCatalog) cached() (map[string]struct{}, bool) {
	catalog.mutex.RLock()
	defer catalog.mutex.RUnlock()
	fresh := catalog.currencies != nil && (catalog.ttl <= 0 || time.Now().Before(catalog.expiresAt))
	return catalog.currencies, fresh
}
