package logger

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"galaxychat/internal/config"
)

const (
	RequestIDHeader = "X-Request-ID"
	ContextKey      = "request_id"
)

// Setup configures the process-wide logrus logger.
func Setup(cfg config.LogConfig) {
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

// Middleware tags each request with an id and writes one access log line when
// the handler returns.
func Middleware(userIDKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ContextKey, requestID)
		c.Header(RequestIDHeader, requestID)

		start := time.Now()
		c.Next()

		fields := log.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if userID, ok := c.Get(userIDKey); ok {
			fields["user_id"] = userID
		}
		entry := log.WithFields(fields)
		switch {
		case len(c.Errors) > 0:
			entry.Error(c.Errors.String())
		case c.Writer.Status() >= 500:
			entry.Warn("request failed")
		default:
			entry.Info("request served")
		}
	}
}

// FromContext returns an entry carrying the request id, if any.
func FromContext(c *gin.Context) *log.Entry {
	if id, ok := c.Get(ContextKey); ok {
		return log.WithField("request_id", id)
	}
	return log.NewEntry(log.StandardLogger())
}
