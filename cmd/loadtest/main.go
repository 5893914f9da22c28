package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// LoadTestConfig holds configuration for load testing
type LoadTestConfig struct {
	BaseURL         string
	Currencies      []string
	Date            string
	ConcurrentUsers int
	RequestsPerUser int
	Timeout         time.Duration
	TestDuration    time.Duration
	RampUpDuration  time.Duration
	ThinkTime       time.Duration
}

// LoadTestResult holds the result of a single request
type LoadTestResult struct {
	UserID     int
	Currency   string
	StatusCode int
	Duration   time.Duration
	Error      error
}

func main() {
	var config LoadTestConfig
	var currencies string

	flag.StringVar(&config.BaseURL, "url", "http://localhost:8081", "Rates service base URL")
	flag.StringVar(&currencies, "currencies", "eur,usd,rub", "Comma separated currencies to request in rotation")
	flag.StringVar(&config.Date, "date", "", "Date to request (YYYY-MM-DD); empty requests today")
	flag.IntVar(&config.ConcurrentUsers, "users", 10, "Number of concurrent users")
	flag.IntVar(&config.RequestsPerUser, "requests", 100, "Number of requests per user")
	flag.DurationVar(&config.Timeout, "timeout", 30*time.Second, "Request timeout")
	flag.DurationVar(&config.TestDuration, "duration", 0, "Test duration (0 = run until all requests complete)")
	flag.DurationVar(&config.RampUpDuration, "rampup", 5*time.Second, "Ramp-up duration")
	flag.DurationVar(&config.ThinkTime, "think", 100*time.Millisecond, "Think time between requests")
	flag.Parse()

	config.Currencies = splitCurrencies(currencies)
	if len(config.Currencies) == 0 || config.ConcurrentUsers <= 0 {
		fmt.Println("at least one currency and one user are required")
		return
	}

	fmt.Printf("Starting load test against %s\n", config.BaseURL)
	fmt.Printf("Currencies: %s, date: %q\n", strings.Join(config.Currencies, ","), config.Date)
	fmt.Printf("Users: %d x %d requests, ramp-up %v, think %v\n\n",
		config.ConcurrentUsers, config.RequestsPerUser, config.RampUpDuration, config.ThinkTime)

	printSummary(runLoadTest(config))
}

func splitCurrencies(value string) []string {
	var currencies []string
	for _, currency := range strings.Split(value, ",") {
		if currency = strings.ToLower(strings.TrimSpace(currency)); currency != "" {
			currencies = append(currencies, currency)
		}
	}
	return currencies
}

// ratesURL builds the request path for one currency
func ratesURL(baseURL, currency, date string) string {
	url := strings.TrimRight(baseURL, "/") + "/rates/" + currency
	if date != "" {
		url += "/" + date
	}
	return url
}

func runLoadTest(config LoadTestConfig) LoadTestSummary {
	results := make(chan LoadTestResult, config.ConcurrentUsers*config.RequestsPerUser)
	client := &http.Client{Timeout: config.Timeout}
	startTime := time.Now()

	ctx := context.Background()
	if config.TestDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.TestDuration)
		defer cancel()
	}

	var wg sync.WaitGroup
	rampUpDelay := config.RampUpDuration / time.Duration(config.ConcurrentUsers)

	for userID := 0; userID < config.ConcurrentUsers; userID++ {
		wg.Add(1)
		go func(uid int) {
			defer wg.Done()

			time.Sleep(time.Duration(uid) * rampUpDelay)

			for reqID := 0; reqID < config.RequestsPerUser; reqID++ {
				if ctx.Err() != nil {
					return
				}

				currency := config.Currencies[(uid+reqID)%len(config.Currencies)]
				results <- makeRequest(ctx, client, ratesURL(config.BaseURL, currency, config.Date), uid, currency)

				if config.ThinkTime > 0 {
					time.Sleep(config.ThinkTime)
				}
			}
		}(userID)
	}

	wg.Wait()
	close(results)

	return processResults(results, time.Since(startTime))
}

func makeRequest(ctx context.Context, client *http.Client, url string, userID int, currency string) LoadTestResult {
	result := LoadTestResult{UserID: userID, Currency: currency}
	start := time.Now()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = err
		return result
	}

	resp, err := client.Do(request)
	if err != nil {
		result.Duration = time.Since(start)
		result.Error = err
		return result
	}
	defer resp.Body.Close()

	// the body is drained so the timing covers the full payload
	_, err = io.Copy(io.Discard, resp.Body)
	result.Duration = time.Since(start)
	result.StatusCode = resp.StatusCode
	result.Error = err
	return result
}
