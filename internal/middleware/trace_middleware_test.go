package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceMiddleware_KeepsInboundTrace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	var fromContext, fromGin string
	router := gin.New()
	router.Use(TraceMiddleware())
	router.GET("/healthz", func(c *gin.Context) {
		fromContext = trace.SpanContextFromContext(c.Request.Context()).TraceID().String()
		fromGin = c.GetString(TraceIDContextKey)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a811ce9a12345678-1234567890abcdef-01")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "4bf92f3577b34da6a811ce9a12345678", fromGin)
	assert.Equal(t, fromGin, fromContext)
	assert.Equal(t, fromGin, w.Header().Get("X-Trace-Id"))
}

func TestTraceMiddleware_GeneratesWhenMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(TraceMiddleware())
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	assert.Len(t, w.Header().Get("X-Trace-Id"), 32)
}
