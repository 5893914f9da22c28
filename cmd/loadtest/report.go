package main

import (
	"fmt"
	"net/http"
	"sort"
	"time"
)

// LoadTestSummary holds the summary of load test results
type LoadTestSummary struct {
	TotalRequests       int
	SuccessfulRequests  int
	FailedRequests      int
	StatusCounts        map[int]int // 0 counts transport errors
	RequestsByCurrency  map[string]int
	TotalDuration       time.Duration
	AverageResponseTime time.Duration
	MinResponseTime     time.Duration
	MaxResponseTime     time.Duration
	RequestsPerSecond   float64
	ErrorRate           float64
	ResponseTime95th    time.Duration
	ResponseTime99th    time.Duration
}

// processResults aggregates results. Only 200 counts as success: 404 means the
// upstream had no data and 429 means the service throttled the run.
func processResults(results <-chan LoadTestResult, totalDuration time.Duration) LoadTestSummary {
	summary := LoadTestSummary{
		TotalDuration:      totalDuration,
		StatusCounts:       make(map[int]int),
		RequestsByCurrency: make(map[string]int),
	}
	var responseTimes []time.Duration

	for result := range results {
		summary.TotalRequests++
		summary.StatusCounts[result.StatusCode]++
		summary.RequestsByCurrency[result.Currency]++
		responseTimes = append(responseTimes, result.Duration)

		if result.Error == nil && result.StatusCode == http.StatusOK {
			summary.SuccessfulRequests++
		} else {
			summary.FailedRequests++
		}
	}

	if summary.TotalRequests == 0 {
		return summary
	}

	summary.ErrorRate = float64(summary.FailedRequests) / float64(summary.TotalRequests) * 100
	if totalDuration > 0 {
		summary.RequestsPerSecond = float64(summary.TotalRequests) / totalDuration.Seconds()
	}

	sort.Slice(responseTimes, func(i, j int) bool { return responseTimes[i] < responseTimes[j] })

	var totalResponseTime time.Duration
	for _, responseTime := range responseTimes {
		totalResponseTime += responseTime
	}
	summary.MinResponseTime = responseTimes[0]
	summary.MaxResponseTime = responseTimes[len(responseTimes)-1]
	summary.AverageResponseTime = totalResponseTime / time.Duration(len(responseTimes))
	summary.ResponseTime95th = percentile(responseTimes, 95)
	summary.ResponseTime99th = percentile(responseTimes, 99)

	return summary
}

// percentile expects sorted input
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * float64(p) / 100.0)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func printSummary(summary LoadTestSummary) {
	fmt.Println("=== Load Test Results ===")
	if summary.TotalRequests == 0 {
		fmt.Println("No requests were made")
		return
	}

	fmt.Printf("Total Requests: %d\n", summary.TotalRequests)
	fmt.Printf("Successful Requests: %d (%.2f%%)\n", summary.SuccessfulRequests,
		float64(summary.SuccessfulRequests)/float64(summary.TotalRequests)*100)
	fmt.Printf("Failed Requests: %d (%.2f%%)\n", summary.FailedRequests, summary.ErrorRate)

	statusCodes := make([]int, 0, len(summary.StatusCounts))
	for statusCode := range summary.StatusCounts {
		statusCodes = append(statusCodes, statusCode)
	}
	sort.Ints(statusCodes)
	for _, statusCode := range statusCodes {
		label := http.StatusText(statusCode)
		if statusCode == 0 {
			label = "transport error"
		}
		fmt.Printf("  %d %s: %d\n", statusCode, label, summary.StatusCounts[statusCode])
	}

	fmt.Printf("Total Duration: %v\n", summary.TotalDuration)
	fmt.Printf("Requests per Second: %.2f\n", summary.RequestsPerSecond)
	fmt.Printf("Average Response Time: %v\n", summary.AverageResponseTime)
	fmt.Printf("Min Response Time: %v\n", summary.MinResponseTime)
	fmt.Printf("Max Response Time: %v\n", summary.MaxResponseTime)
	fmt.Printf("95th Percentile Response Time: %v\n", summary.ResponseTime95th)
	fmt.Printf("99th Percentile Response Time: %v\n", summary.ResponseTime99th)

	if throttled := summary.StatusCounts[http.StatusTooManyRequests]; throttled > 0 {
		fmt.Printf("\n%d requests were rate limited; raise RATE_LIMIT_REQUESTS or lower -users\n", throttled)
	}
}
