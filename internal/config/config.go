package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backend names accepted by STORAGE_TYPE
const (
	StorageTypeFile  = "file"
	StorageTypeRedis = "redis"
)

// DefaultTargetCurrencies is the subset of codes every response is restricted to
var DefaultTargetCurrencies = []string{"rub", "eur", "byn", "usd", "pln"}

// RatesProvider represents a single mirror of the currency rates API
type RatesProvider struct {
	Name string
	// RatesURLTemplate contains {date} and {currency} placeholders
	RatesURLTemplate string
	CurrenciesURL    string
	Enabled          bool
	Priority         int // Lower number = higher priority
	Timeout          time.Duration
}

// RedisConfig holds the networked cache backend settings
type RedisConfig struct {
	URL            string
	ConnectTimeout time.Duration
	KeyExpire      time.Duration
}

// Config holds all configuration for the application
type Config struct {
	Port     string
	LogLevel string

	TargetCurrencies []string

	StorageType string
	CacheDir    string
	Redis       RedisConfig

	// Rates API mirrors, sorted by priority
	RatesProviders []RatesProvider
	CatalogTTL     time.Duration

	// Proxies whose X-Forwarded-For / X-Real-IP headers identify the client.
	// Empty means the peer address is always the client.
	TrustedProxies []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitBurst    int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	configuration := &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		TargetCurrencies: parseCurrencyList(getEnv("TARGET_CURRENCIES", strings.Join(DefaultTargetCurrencies, ","))),

		StorageType: strings.ToLower(getEnv("STORAGE_TYPE", StorageTypeRedis)),
		CacheDir:    getEnv("CACHE_DIR", "currencies-cache"),
		Redis: RedisConfig{
			URL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
			ConnectTimeout: seconds(getEnvInt("REDIS_CONNECT_TIMEOUT_SECONDS", 5)),
			KeyExpire:      seconds(getEnvInt("REDIS_KEY_EXPIRE_SECONDS", 60)),
		},

		RatesProviders: loadRatesProviders(),
		CatalogTTL:     seconds(getEnvInt("CURRENCIES_CATALOG_TTL_SECONDS", 3600)),

		TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),

		RateLimitEnabled:  getEnv("RATE_LIMIT_ENABLED", "true") == "true",
		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   seconds(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)),
		RateLimitBurst:    getEnvInt("RATE_LIMIT_BURST", 10),
	}

	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	return configuration, nil
}

// Validate reports configuration that would leave the service unable to answer requests
func (configuration *Config) Validate() error {
	switch configuration.StorageType {
	case StorageTypeFile:
		if configuration.CacheDir == "" {
			return errors.New("config: CACHE_DIR must be set for the file storage")
		}
	case StorageTypeRedis:
		if configuration.Redis.URL == "" {
			return errors.New("config: REDIS_URL must be set for the redis storage")
		}
		if configuration.Redis.KeyExpire <= 0 {
			return errors.New("config: REDIS_KEY_EXPIRE_SECONDS must be positive")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_TYPE %q", configuration.StorageType)
	}

	if len(configuration.TargetCurrencies) == 0 {
		return errors.New("config: TARGET_CURRENCIES must list at least one currency")
	}
	if len(configuration.RatesProviders) == 0 {
		return errors.New("config: no rates providers enabled")
	}
	for _, proxy := range configuration.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("config: TRUSTED_PROXIES entry %q is neither an IP nor a CIDR", proxy)
			}
		}
	}
	return nil
}

// loadRatesProviders loads the rates API mirrors from environment variables
func loadRatesProviders() []RatesProvider {
	defaultProviders := []RatesProvider{
		{
			Name:             "jsdelivr",
			RatesURLTemplate: getEnv("JSDELIVR_RATES_URL", "https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@{date}/v1/currencies/{currency}.json"),
			CurrenciesURL:    getEnv("JSDELIVR_CURRENCIES_URL", "https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@latest/v1/currencies.json"),
			Enabled:          getEnv("JSDELIVR_ENABLED", "true") == "true",
			Priority:         1,
			Timeout:          seconds(getEnvInt("JSDELIVR_TIMEOUT", 10)),
		},
		{
			Name:             "pages.dev",
			RatesURLTemplate: getEnv("PAGES_DEV_RATES_URL", "https://{date}.currency-api.pages.dev/v1/currencies/{currency}.json"),
			CurrenciesURL:    getEnv("PAGES_DEV_CURRENCIES_URL", "https://latest.currency-api.pages.dev/v1/currencies.json"),
			Enabled:          getEnv("PAGES_DEV_ENABLED", "true") == "true",
			Priority:         2,
			Timeout:          seconds(getEnvInt("PAGES_DEV_TIMEOUT", 10)),
		},
	}

	providers := append(defaultProviders, loadAdditionalProviders()...)

	enabledProviders := make([]RatesProvider, 0, len(providers))
	for _, provider := range providers {
		if provider.Enabled {
			enabledProviders = append(enabledProviders, provider)
		}
	}

	sort.SliceStable(enabledProviders, func(i, j int) bool {
		return enabledProviders[i].Priority < enabledProviders[j].Priority
	})

	return enabledProviders
}

// loadAdditionalProviders loads additional mirrors (PROVIDER_1_NAME, PROVIDER_2_NAME, etc.)
func loadAdditionalProviders() []RatesProvider {
	providers := []RatesProvider{}

	for i := 1; i <= 10; i++ {
		name := getEnv(fmt.Sprintf("PROVIDER_%d_NAME", i), "")
		if name == "" {
			break
		}

		provider := RatesProvider{
			Name:             name,
			RatesURLTemplate: getEnv(fmt.Sprintf("PROVIDER_%d_RATES_URL", i), ""),
			CurrenciesURL:    getEnv(fmt.Sprintf("PROVIDER_%d_CURRENCIES_URL", i), ""),
			Enabled:          getEnv(fmt.Sprintf("PROVIDER_%d_ENABLED", i), "true") == "true",
			Priority:         getEnvInt(fmt.Sprintf("PROVIDER_%d_PRIORITY", i), 10),
			Timeout:          seconds(getEnvInt(fmt.Sprintf("PROVIDER_%d_TIMEOUT", i), 10)),
		}

		if provider.RatesURLTemplate != "" {
			providers = append(providers, provider)
		}
	}

	return providers
}

// parseCurrencyList splits a comma separated list into lowercase, de-duplicated codes
func parseCurrencyList(raw string) []string {
	seen := make(map[string]struct{})
	currencies := []string{}
	for _, part := range strings.Split(raw, ",") {
		code := strings.ToLower(strings.TrimSpace(part))
		if code == "" {
			continue
		}
		if _, duplicate := seen[code]; duplicate {
			continue
		}
		seen[code] = struct{}{}
		currencies = append(currencies, code)
	}
	return currencies
}

// parseList splits a comma separated list, dropping empty entries
func parseList(raw string) []string {
	items := []string{}
	for _, part := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(part); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvInt gets an integer environment variable, falling back on absent or malformed values
func getEnvInt(key string, fallback int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
