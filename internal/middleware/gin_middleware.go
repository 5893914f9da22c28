package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dalfonso89/currency-rates-service/internal/logger"
	"github.com/dalfonso89/currency-rates-service/internal/metrics"
)

// RequestIDKey is the gin context key holding the request ID
const RequestIDKey = "request_id"

// RequestLogger logs every request through the structured logger
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		fields := logger.Fields{
			"status":     param.StatusCode,
			"latency":    param.Latency.String(),
			"client_ip":  param.ClientIP,
			"method":     param.Method,
			"path":       param.Path,
			"user_agent": param.Request.UserAgent(),
		}
		if requestID, ok := param.Keys[RequestIDKey]; ok {
			fields["request_id"] = requestID
		}
		if param.ErrorMessage != "" {
			fields["error"] = param.ErrorMessage
		}
		log.WithFields(fields).Info("HTTP Request")
		return ""
	})
}

// SecurityHeaders adds security headers to responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// RequestID propagates X-Request-ID or assigns a fresh UUID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set(RequestIDKey, requestID)
		c.Next()
	}
}

// Metrics records request counts and latencies by route template.
// Unmatched routes are reported under "unmatched" to keep label cardinality bounded.
func Metrics(serviceMetrics *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		serviceMetrics.HTTPRequestsTotal.WithLabelValues(path, method, strconv.Itoa(c.Writer.Status())).Inc()
		serviceMetrics.HTTPRequestDuration.WithLabelValues(path, method).Observe(time.Since(startTime).Seconds())
	}
}
