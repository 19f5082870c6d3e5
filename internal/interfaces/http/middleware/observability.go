package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HTTPObserver records request metrics
type HTTPObserver interface {
	ObserveHTTP(method, route string, code int, elapsed time.Duration)
}

// Metrics records method, matched route pattern and status of every request.
// Unmatched paths share one route label.
func Metrics(obs HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		obs.ObserveHTTP(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// Tracing starts a server span per request, named after the route pattern
func Tracing(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// SpanAttributes enriches the request span once handlers have run. Must run
// after Tracing and RequestID.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if id := GetRequestID(c); id != "" && span.IsRecording() {
			span.SetAttributes(attribute.String("request_id", id))
		}

		c.Next()

		if !span.IsRecording() {
			return
		}
		if tenant := c.GetString(TenantIDKey); tenant != "" {
			span.SetAttributes(attribute.String("tenant_id", tenant))
		}
		if user := c.GetString(UsernameKey); user != "" {
			span.SetAttributes(attribute.String("operator", user))
		}
		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
