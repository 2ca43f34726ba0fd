package httpmiddleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InjectLogger stores lg, enriched with the request ID, in the request
// context so handlers can use zctx.From. Place it after RequestID.
func InjectLogger(lg *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		reqLg := lg
		if id := RequestIDFromContext(ctx); id != "" {
			reqLg = lg.With(zap.String("request_id", id))
		}
		c.Request = c.Request.WithContext(zctx.Base(ctx, reqLg))
		c.Next()
	}
}

// LogRequests writes one log entry per completed request. Server errors are
// logged at warn level, everything else at debug.
func LogRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := zapcore.DebugLevel
		if status >= 500 {
			level = zapcore.WarnLevel
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		zctx.From(c.Request.Context()).Log(level, "Request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("size", c.Writer.Size()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
