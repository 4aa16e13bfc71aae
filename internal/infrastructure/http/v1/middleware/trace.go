package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appctx "canteiro/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"

	keyRequestID = "request_id"
	keyTraceID   = "trace_id"
)

// Trace takes or generates the request and trace ids and puts them on the
// request context and the response headers.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		trace := appctx.NewTraceContext()
		if v := c.GetHeader(HeaderRequestID); v != "" {
			trace.RequestID = v
		}
		if v := c.GetHeader(HeaderTraceID); v != "" {
			trace.TraceID = v
		}
		trace.SpanID = uuid.New().String()[:16]

		c.Request = c.Request.WithContext(appctx.WithTrace(c.Request.Context(), trace))

		c.Set(keyTraceID, trace.TraceID)
		c.Set(keyRequestID, trace.RequestID)

		c.Header(HeaderRequestID, trace.RequestID)
		c.Header(HeaderTraceID, trace.TraceID)

		c.Next()
	}
}
