package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dalfonso89/currency-rates-service/internal/config"
	"github.com/dalfonso89/currency-rates-service/internal/logger"
	"github.com/dalfonso89/currency-rates-service/internal/models"
)

// idleBucketTTL is how long an untouched client bucket is kept
const idleBucketTTL = 24 * time.Hour

// Settings configures the per-client token buckets
type Settings struct {
	Enabled  bool
	Requests int // tokens refilled per Window
	Window   time.Duration
	Burst    int // bucket capacity
}

// SettingsFromConfig extracts the rate limit settings
func SettingsFromConfig(configuration *config.Config) Settings {
	return Settings{
		Enabled:  configuration.RateLimitEnabled,
		Requests: configuration.RateLimitRequests,
		Window:   configuration.RateLimitWindow,
		Burst:    configuration.RateLimitBurst,
	}
}

// Limiter implements a token bucket rate limiter per client IP
type Limiter struct {
	settings Settings
	logger   logger.Logger
	now      func() time.Time

	clientBuckets map[string]*tokenBucket
	bucketsMutex  sync.Mutex

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewLimiter creates a limiter and starts its background cleanup
func NewLimiter(settings Settings, log logger.Logger) *Limiter {
	rateLimiter := &Limiter{
		settings:      settings,
		logger:        log,
		now:           time.Now,
		clientBuckets: make(map[string]*tokenBucket),
		stopCleanup:   make(chan struct{}),
	}

	go rateLimiter.cleanup(5 * time.Minute)

	return rateLimiter
}

// Allow takes a token from the client's bucket, refilling it for the time elapsed
func (rateLimiter *Limiter) Allow(clientIP string) bool {
	if !rateLimiter.settings.Enabled {
		return true
	}

	rateLimiter.bucketsMutex.Lock()
	defer rateLimiter.bucketsMutex.Unlock()

	currentTime := rateLimiter.now()
	bucket, exists := rateLimiter.clientBuckets[clientIP]
	if !exists {
		bucket = &tokenBucket{tokens: float64(rateLimiter.settings.Burst), lastRefill: currentTime}
		rateLimiter.clientBuckets[clientIP] = bucket
	}

	if elapsed := currentTime.Sub(bucket.lastRefill); elapsed > 0 && rateLimiter.settings.Window > 0 {
		refill := elapsed.Seconds() / rateLimiter.settings.Window.Seconds() * float64(rateLimiter.settings.Requests)
		bucket.tokens = minFloat(float64(rateLimiter.settings.Burst), bucket.tokens+refill)
		bucket.lastRefill = currentTime
	}

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true
	}
	return false
}

// Middleware rejects requests over the limit with 429. Clients are keyed by
// c.ClientIP, which only honors forwarding headers from the engine's trusted proxies.
func (rateLimiter *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !rateLimiter.Allow(clientIP) {
			rateLimiter.logger.Warnf("Rate limit exceeded for IP: %s", clientIP)
			c.Header("X-RateLimit-Limit", strconv.Itoa(rateLimiter.settings.Requests))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(rateLimiter.now().Add(rateLimiter.settings.Window).Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error:   "rate limit exceeded",
				Message: "Too many requests, try again later",
				Code:    http.StatusTooManyRequests,
			})
			return
		}

		c.Next()
	}
}

// cleanup removes idle buckets
func (rateLimiter *Limiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rateLimiter.removeIdle()
		case <-rateLimiter.stopCleanup:
			return
		}
	}
}

func (rateLimiter *Limiter) removeIdle() {
	rateLimiter.bucketsMutex.Lock()
	defer rateLimiter.bucketsMutex.Unlock()

	currentTime := rateLimiter.now()
	for clientIP, bucket := range rateLimiter.clientBuckets {
		if currentTime.Sub(bucket.lastRefill) > idleBucketTTL {
			delete(rateLimiter.clientBuckets, clientIP)
		}
	}
}

// Stop stops the cleanup goroutine; it is safe to call more than once
func (rateLimiter *Limiter) Stop() {
	rateLimiter.stopOnce.Do(func() {
		close(rateLimiter.stopCleanup)
	})
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
