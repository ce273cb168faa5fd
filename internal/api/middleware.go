package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"notification-dispatch/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// RequestLoggingMiddleware tags every request with an id and logs its outcome.
// Probe endpoints are logged at debug level.
func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Header(requestIDHeader, id)

		c.Next()

		path := c.Request.URL.Path
		status := c.Writer.Status()
		entry := logger.WithFields(map[string]interface{}{
			"request_id": id,
			"client_ip":  c.ClientIP(),
		})
		format := "Request: %s %s, Status: %d, Latency: %v"
		args := []interface{}{c.Request.Method, path, status, time.Since(start)}
		switch {
		case status >= 500:
			entry.Errorf(format, args...)
		case path == "/health" || path == "/metrics":
			entry.Debugf(format, args...)
		default:
			entry.Infof(format, args...)
		}
	}
}
