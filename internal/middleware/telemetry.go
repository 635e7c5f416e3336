package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/tscv-go/internal/logging"
)

// TraceIDHeader echoes the request's trace ID.
const TraceIDHeader = "X-Trace-ID"

// RequestLogger logs every request after it completes. Health and metrics
// probes are only logged when they fail.
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.Request.URL.Path
		if (path == "/health" || path == "/metrics") && status < 400 {
			return
		}
		logging.LogAPIRequest(logger, c.Request.Method, path, status, time.Since(start), c.GetString(ContextKeySubject))
	}
}

// TraceHeader sets X-Trace-ID when the request carries a sampled span. It
// must run after the tracing middleware.
func TraceHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc := trace.SpanContextFromContext(c.Request.Context())
		if sc.HasTraceID() {
			c.Header(TraceIDHeader, sc.TraceID().String())
		}
		c.Next()
	}
}

// RecordError records an error on the current span
func RecordError(c *gin.Context, err error, description string) {
	span := trace.SpanFromContext(c.Request.Context())
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, description)
	}
}
