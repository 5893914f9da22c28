package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dalfonso89/currency-rates-service/internal/config"
	"github.com/dalfonso89/currency-rates-service/internal/logger"
	"github.com/dalfonso89/currency-rates-service/internal/models"
)

// RatesProvider returns every known rate for currency on date.
// It returns an error wrapping ErrProviderNotFound when there is no data.
type RatesProvider interface {
	GetRates(ctx context.Context, currency string, date time.Time) (models.RawRates, error)
}

// CurrencyLister returns the catalog of known currency codes and their names
type CurrencyLister interface {
	GetCurrencies(ctx context.Context) (map[string]string, error)
}

// HTTPRatesProvider fetches rates from one mirror of the currency API
type HTTPRatesProvider struct {
	configuration config.RatesProvider
	logger        logger.Logger
	httpClient    *http.Client
}

// NewHTTPRatesProvider creates a new HTTP rates provider
func NewHTTPRatesProvider(configuration config.RatesProvider, log logger.Logger) *HTTPRatesProvider {
	timeout := configuration.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpTransport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPRatesProvider{
		configuration: configuration,
		logger:        log,
		httpClient:    &http.Client{Timeout: timeout, Transport: httpTransport},
	}
}

// GetName returns the mirror name
func (provider *HTTPRatesProvider) GetName() string {
	return provider.configuration.Name
}

// GetRates fetches the rates document for currency on date
func (provider *HTTPRatesProvider) GetRates(ctx context.Context, currency string, date time.Time) (models.RawRates, error) {
	currency = strings.ToLower(currency)

	body, err := provider.get(ctx, provider.buildURL(currency, date))
	if err != nil {
		return models.RawRates{}, err
	}

	return parseRatesDocument(body, currency)
}

// GetCurrencies fetches the currency catalog
func (provider *HTTPRatesProvider) GetCurrencies(ctx context.Context) (map[string]string, error) {
	if provider.configuration.CurrenciesURL == "" {
		return nil, fmt.Errorf("provider %s has no currencies url", provider.configuration.Name)
	}

	body, err := provider.get(ctx, provider.configuration.CurrenciesURL)
	if err != nil {
		return nil, err
	}

	var currencies map[string]string
	if err := json.Unmarshal(body, &currencies); err != nil {
		return nil, fmt.Errorf("invalid response: failed to parse currencies: %w", err)
	}
	return currencies, nil
}

// buildURL fills the {date} and {currency} placeholders of the mirror template
func (provider *HTTPRatesProvider) buildURL(currency string, date time.Time) string {
	replacer := strings.NewReplacer(
		"{date}", models.NewDate(date).String(),
		"{currency}", currency,
	)
	return replacer.Replace(provider.configuration.RatesURLTemplate)
}

func (provider *HTTPRatesProvider) get(ctx context.Context, url string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := provider.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, response.Body)
		return nil, fmt.Errorf("%s: %w", provider.configuration.Name, ErrProviderNotFound)
	case response.StatusCode != http.StatusOK:
		io.Copy(io.Discard, response.Body)
		return nil, fmt.Errorf("provider %s returned status %d", provider.configuration.Name, response.StatusCode)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// parseRatesDocument reads {"date": ..., "<currency>": {code: rate, ...}}
// keeping the rate entries in document order and every rate as an exact decimal.
func parseRatesDocument(body []byte, currency string) (models.RawRates, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	if err := expectDelim(decoder, '{'); err != nil {
		return models.RawRates{}, err
	}

	var raw models.RawRates
	ratesSeen := false
	for decoder.More() {
		key, err := readKey(decoder)
		if err != nil {
			return models.RawRates{}, err
		}

		switch key {
		case "date":
			if err := decoder.Decode(&raw.Date); err != nil {
				return models.RawRates{}, fmt.Errorf("invalid response: date: %w", err)
			}
		case currency:
			values, err := parseRatesObject(decoder)
			if err != nil {
				return models.RawRates{}, err
			}
			raw.Values = values
			ratesSeen = true
		default:
			var skipped json.RawMessage
			if err := decoder.Decode(&skipped); err != nil {
				return models.RawRates{}, fmt.Errorf("invalid response: %w", err)
			}
		}
	}

	if !ratesSeen {
		return models.RawRates{}, fmt.Errorf("invalid response: no rates for %q", currency)
	}
	return raw, nil
}

func parseRatesObject(decoder *json.Decoder) ([]models.RawRate, error) {
	if err := expectDelim(decoder, '{'); err != nil {
		return nil, err
	}

	values := []models.RawRate{}
	for decoder.More() {
		code, err := readKey(decoder)
		if err != nil {
			return nil, err
		}

		var number json.Number
		if err := decoder.Decode(&number); err != nil {
			return nil, fmt.Errorf("invalid response: rate for %q: %w", code, err)
		}
		rate, err := models.ParseRate(number.String())
		if err != nil {
			return nil, fmt.Errorf("invalid response: %w", err)
		}
		values = append(values, models.RawRate{Currency: strings.ToLower(code), Value: rate})
	}

	if err := expectDelim(decoder, '}'); err != nil {
		return nil, err
	}
	return values, nil
}

func expectDelim(decoder *json.Decoder, expected json.Delim) error {
	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != expected {
		return fmt.Errorf("invalid response: expected %q, got %v", expected, token)
	}
	return nil
}

func readKey(decoder *json.Decoder) (string, error) {
	token, err := decoder.Token()
	if err != nil {
		return "", fmt.Errorf("invalid response: %w", err)
	}
	key, ok := token.(string)
	if !ok {
		return "", fmt.Errorf("invalid response: expected object key, got %v", token)
	}
	return key, nil
}

// FallbackProvider tries mirrors in priority order
type FallbackProvider struct {
	providers []*HTTPRatesProvider
	logger    logger.Logger
}

// NewFallbackProvider creates a provider over every configured mirror
func NewFallbackProvider(configuration *config.Config, log logger.Logger) *FallbackProvider {
	providers := make([]*HTTPRatesProvider, 0, len(configuration.RatesProviders))
	for _, providerConfig := range configuration.RatesProviders {
		if !providerConfig.Enabled {
			continue
		}
		providers = append(providers, NewHTTPRatesProvider(providerConfig, log))
	}

	return &FallbackProvider{providers: providers, logger: log}
}

// GetRates returns the first mirror's answer. A not-found answer from any
// mirror wins over transport failures of the others.
func (fallback *FallbackProvider) GetRates(ctx context.Context, currency string, date time.Time) (models.RawRates, error) {
	var lastError, notFoundError error
	for _, provider := range fallback.providers {
		raw, err := provider.GetRates(ctx, currency, date)
		if err == nil {
			return raw, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.RawRates{}, ctxErr
		}

		if errors.Is(err, ErrProviderNotFound) {
			notFoundError = err
		} else {
			fallback.logger.Warnf("Rates mirror %s failed: %v", provider.GetName(), err)
			lastError = err
		}
	}

	if notFoundError != nil {
		return models.RawRates{}, notFoundError
	}
	if lastError == nil {
		lastError = errors.New("no rates providers configured")
	}
	return models.RawRates{}, lastError
}

// GetCurrencies returns the catalog from the first mirror that serves it
func (fallback *FallbackProvider) GetCurrencies(ctx context.Context) (map[string]string, error) {
	lastError := errors.New("no rates providers configured")
	for _, provider := range fallback.providers {
		currencies, err := provider.GetCurrencies(ctx)
		if err == nil {
			return currencies, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		fallback.logger.Warnf("Currencies mirror %s failed: %v", provider.GetName(), err)
		lastError = err
	}
	return nil, lastError
}
