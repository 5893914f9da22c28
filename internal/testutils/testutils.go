package testutils

import (
	"context"
	"time"

	"github.com/dalfonso89/currency-rates-service/internal/config"
	"github.com/dalfonso89/currency-rates-service/internal/logger"
)

// MockLogger creates a quiet logger for testing
func MockLogger() logger.Logger {
	return logger.New("error")
}

// MockConfig creates a file-backed configuration for testing
func MockConfig(cacheDir string) *config.Config {
	return &config.Config{
		Port:     "8081",
		LogLevel: "error",

		TargetCurrencies: []string{"rub", "eur", "byn", "usd", "pln"},

		StorageType: config.StorageTypeFile,
		CacheDir:    cacheDir,
		Redis: config.RedisConfig{
			URL:            "redis://localhost:6379/0",
			ConnectTimeout: 5 * time.Second,
			KeyExpire:      60 * time.Second,
		},

		RatesProviders: []config.RatesProvider{
			{
				Name:             "test-provider",
				RatesURLTemplate: "https://rates.test/{date}/v1/currencies/{currency}.json",
				CurrenciesURL:    "https://rates.test/latest/v1/currencies.json",
				Enabled:          true,
				Priority:         1,
				Timeout:          5 * time.Second,
			},
		},
		CatalogTTL: time.Hour,

		RateLimitEnabled:  false,
		RateLimitRequests: 100,
		RateLimitWindow:   60 * time.Second,
		RateLimitBurst:    10,
	}
}

// MockConfigWithServer points the configuration at a MockRatesServer
func MockConfigWithServer(cacheDir string, server *MockRatesServer) *config.Config {
	cfg := MockConfig(cacheDir)
	cfg.RatesProviders = []config.RatesProvider{server.ProviderConfig("mock", 1)}
	return cfg
}

// MockContextWithTimeout creates a mock context with timeout for testing
func MockContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
