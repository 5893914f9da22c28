package testutils

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/dalfonso89/currency-rates-service/internal/config"
)

// MockRatesServer serves documents shaped like the public currency API:
//
//	GET /{date}/v1/currencies/{currency}.json -> {"date": ..., "<currency>": {...}}
//	GET /latest/v1/currencies.json            -> {"eur": "Euro", ...}
type MockRatesServer struct {
	server *httptest.Server

	mu         sync.Mutex
	documents  map[string]string // "{date}/{currency}" -> raw JSON
	currencies string
	statusCode int
	requests   map[string]int
}

// NewMockRatesServer creates a server preloaded with EUR and RUB rates for 2023-07-18
func NewMockRatesServer() *MockRatesServer {
	mock := &MockRatesServer{
		documents: make(map[string]string),
		requests:  make(map[string]int),
		currencies: `{"eur":"Euro","rub":"Russian Ruble","usd":"US Dollar","byn":"Belarusian Ruble",` +
			`"pln":"Polish Zloty","gbp":"British Pound","aud":"Australian Dollar"}`,
	}

	mock.SetDocument("2023-07-18", "eur", `{"date":"2023-07-18","eur":{"rub":92.5,"usd":1,"gbp":0.8}}`)
	mock.SetDocument("2023-07-18", "rub", `{"date":"2023-07-18","rub":{"aud":0.01612,"byn":0.0344,"eur":0.0108,"usd":0.0112}}`)

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handler))
	return mock
}

// SetDocument registers the raw document returned for date and currency
func (m *MockRatesServer) SetDocument(date, currency, document string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[date+"/"+currency] = document
}

// SetStatusCode forces every response to statusCode; 0 restores normal behaviour
func (m *MockRatesServer) SetStatusCode(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCode = statusCode
}

// Requests returns how many times path was requested
func (m *MockRatesServer) Requests(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[path]
}

// RatesRequests returns how many rate documents were requested for date and currency
func (m *MockRatesServer) RatesRequests(date, currency string) int {
	return m.Requests(fmt.Sprintf("/%s/v1/currencies/%s.json", date, currency))
}

func (m *MockRatesServer) handler(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests[r.URL.Path]++
	statusCode := m.statusCode
	m.mu.Unlock()

	if statusCode != 0 {
		w.WriteHeader(statusCode)
		return
	}

	if r.URL.Path == "/latest/v1/currencies.json" {
		m.writeJSON(w, m.currencies)
		return
	}

	// /{date}/v1/currencies/{currency}.json
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) != 4 || parts[1] != "v1" || parts[2] != "currencies" || !strings.HasSuffix(parts[3], ".json") {
		http.NotFound(w, r)
		return
	}
	date := parts[0]
	if date == "latest" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	currency := strings.TrimSuffix(parts[3], ".json")

	m.mu.Lock()
	document, ok := m.documents[date+"/"+currency]
	m.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	m.writeJSON(w, document)
}

func (m *MockRatesServer) writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// URL returns the base URL of the mock server
func (m *MockRatesServer) URL() string {
	return m.server.URL
}

// ProviderConfig returns a mirror configuration targeting this server
func (m *MockRatesServer) ProviderConfig(name string, priority int) config.RatesProvider {
	return config.RatesProvider{
		Name:             name,
		RatesURLTemplate: m.server.URL + "/{date}/v1/currencies/{currency}.json",
		CurrenciesURL:    m.server.URL + "/latest/v1/currencies.json",
		Enabled:          true,
		Priority:         priority,
		Timeout:          5 * time.Second,
	}
}

// Close closes the mock server
func (m *MockRatesServer) Close() {
	m.server.Close()
}
