package apiutil

import (
	"github.com/Aidin1998/amlwatch/common/errors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// RFC7807ErrorMiddleware renders the last error attached with c.Error as an
// RFC 7807 problem document.
func RFC7807ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last()
		var pd *errors.ProblemDetails
		if err.Type == gin.ErrorTypeBind {
			pd = ValidationProblem(err.Err, c.Request.URL.Path)
		} else {
			pd = errors.FromError(err.Err, c.Request.URL.Path)
		}
		RFC7807ErrorResponse(c, pd)
	}
}

// GetTraceID returns the active span's trace id, falling back to the
// X-Trace-ID request header.
func GetTraceID(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	if traceID, exists := c.Get("trace_id"); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return c.GetHeader("X-Trace-ID")
}

// RFC7807ErrorResponse writes an RFC 7807 compliant error response
func RFC7807ErrorResponse(c *gin.Context, pd *errors.ProblemDetails) {
	if traceID := GetTraceID(c); traceID != "" {
		pd.WithTraceID(traceID)
	}
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(pd.Status, pd)
}
