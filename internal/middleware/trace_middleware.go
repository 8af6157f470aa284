package middleware

import (
	"egiro-gateway/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	TraceIDContextKey = "trace_id"
	traceparentHeader = "traceparent"
	traceIDHeader     = "X-Trace-Id"
)

// TraceMiddleware makes sure every request carries a valid traceparent and
// puts the extracted span context on the request context, so spans started
// downstream join the caller's trace.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceparent := utils.EnsureTraceparent(c.GetHeader(traceparentHeader))
		c.Request.Header.Set(traceparentHeader, traceparent)

		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		c.Request = c.Request.WithContext(ctx)

		traceID := utils.ExtractTraceID(traceparent)
		c.Set(TraceIDContextKey, traceID)
		c.Header(traceIDHeader, traceID)
		c.Next()
	}
}
