package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"reliefdesk/internal/pkg/response"
)

const RequestIDHeader = "X-Request-ID"

// RequestID propagates an incoming X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger writes one entry per request and recovers from panics with
// a 500 envelope.
func RequestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				requestFields(c, log, start).
					WithField("panic", fmt.Sprintf("%v", recovered)).
					WithField("stack", string(debug.Stack())).
					Error("request panicked")
				response.Abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				return
			}

			entry := requestFields(c, log, start)
			if len(c.Errors) > 0 {
				entry = entry.WithField("errors", c.Errors.String())
			}
			switch status := c.Writer.Status(); {
			case status >= http.StatusInternalServerError:
				entry.Error("request failed")
			case status >= http.StatusBadRequest:
				entry.Warn("request rejected")
			default:
				entry.Info("request")
			}
		}()

		c.Next()
	}
}

func requestFields(c *gin.Context, log logrus.FieldLogger, start time.Time) logrus.FieldLogger {
	return log.WithFields(logrus.Fields{
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"status":     c.Writer.Status(),
		"latency":    time.Since(start).String(),
		"client_ip":  c.ClientIP(),
		"user_id":    c.GetInt64("user_id"),
		"request_id": c.GetString("request_id"),
	})
}
