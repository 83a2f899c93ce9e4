package api

import (
	"net/http"
	"time"

	"Argus/internal/models"
	"Argus/pkg/logger"
	"Argus/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// traceIDContextKey is the gin context key carrying the request trace id.
const traceIDContextKey = "traceID"

// TraceHeader is the header carrying the trace id in both directions.
const TraceHeader = "X-Trace-Id"

// TraceMiddleware adopts the caller's trace id or mints one, and echoes it
// on the response so the caller can correlate logs and job records.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}
		c.Set(traceIDContextKey, traceID)
		c.Header(TraceHeader, traceID)
		c.Next()
	}
}

// CORSMiddleware allows browser clients from any origin and short-circuits
// preflight requests.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+TraceHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestLogMiddleware logs one line per completed request with its trace
// id, request context, status, and latency.
func RequestLogMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithTrace(c.GetString(traceIDContextKey)).
			WithRequest(models.RequestInfo{
				Method:     c.Request.Method,
				Path:       c.Request.URL.Path,
				RemoteAddr: c.ClientIP(),
				UserAgent:  c.Request.UserAgent(),
			}).
			WithPayload(map[string]interface{}{
				"status":  c.Writer.Status(),
				"latency": time.Since(start).String(),
			}).
			Info("Request completed")
	}
}

// RateLimitMiddleware rejects requests over the configured rate.
func RateLimitMiddleware(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
