// Package httpapi exposes the monitoring engine's external HTTP surface:
// ad-hoc probe submission, the available-targets listing, and the Stats
// View query, grounded on the teacher's applications/httpapi (same
// concerns, same naming) but routed with gin instead of the teacher's raw
// mux handlers (design note, DESIGN.md) and its infrastructure/middleware
// chain re-expressed as gin.HandlerFunc.
package httpapi

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	engerrors "github.com/upweb-network/monitor-engine/infrastructure/errors"
	"github.com/upweb-network/monitor-engine/infrastructure/logging"
	"github.com/upweb-network/monitor-engine/infrastructure/metrics"
)

// loggingMiddleware stamps every request with a trace ID and logs its
// outcome, the gin equivalent of the teacher's LoggingMiddleware.
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = logging.NewTraceID()
		}
		ctx := logging.WithTraceID(c.Request.Context(), traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-ID", traceID)

		c.Next()

		if logger != nil {
			logger.WithContext(ctx).WithField("status", c.Writer.Status()).
				WithField("method", c.Request.Method).
				WithField("path", c.FullPath()).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				Info("http request")
		}
	}
}

// recoveryMiddleware recovers a panicking handler and logs its stack,
// the gin equivalent of the teacher's RecoveryMiddleware.
func recoveryMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				if logger != nil {
					logger.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
						"panic": fmt.Sprintf("%v", r),
						"stack": string(debug.Stack()),
						"path":  c.Request.URL.Path,
					}).Error("panic recovered")
				}
				writeError(c, engerrors.Internal("internal server error", fmt.Errorf("%v", r)))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// metricsMiddleware records request count and latency, the gin equivalent
// of the teacher's MetricsMiddleware.
func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		m.RecordHTTPRequest(c.Request.Method, path, fmt.Sprintf("%d", c.Writer.Status()), time.Since(start))
	}
}

// bodyLimitMiddleware caps request bodies, the gin equivalent of the
// teacher's BodyLimitMiddleware.
func bodyLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// writeError renders err as the engine's standard error envelope, unwrapping
// a ServiceError when present and falling back to 500 otherwise.
func writeError(c *gin.Context, err error) {
	se := engerrors.As(err)
	if se == nil {
		se = engerrors.Internal("unexpected error", err)
	}
	c.JSON(se.HTTPStatus, gin.H{
		"code":    se.Code,
		"message": se.Message,
		"details": se.Details,
	})
}
