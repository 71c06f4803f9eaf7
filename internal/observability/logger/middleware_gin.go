package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/shoptok/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const headerRequestID = "X-Request-Id"

// MiddlewareConfig controls the access log.
type MiddlewareConfig struct {
	Debug bool
	// ActorHeader carries the caller identity. When set, the actor is
	// attached to the request context before any handler runs so public
	// reads are attributed too.
	ActorHeader     string
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware writes one http_request entry per request.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := obscontext.WithRequestID(c.Request.Context(), ensureRequestID(c))
		if cfg.ActorHeader != "" {
			if actor := strings.TrimSpace(c.GetHeader(cfg.ActorHeader)); actor != "" {
				ctx = obscontext.WithActor(ctx, actor)
			}
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		fields = append(fields, resourceFields(c)...)

		if lastErr := c.Errors.Last(); lastErr != nil {
			errorType, errorCode := "", ""
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}
		if retry := c.Writer.Header().Get("Retry-After"); retry != "" {
			fields = append(fields, zap.String("retry_after", retry))
		}

		if ce := FromContext(c.Request.Context()).Check(accessLevel(route, status), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

// resourceFields names the path parameter by the aggregate it addresses.
func resourceFields(c *gin.Context) []zap.Field {
	var fields []zap.Field
	route := c.FullPath()
	if id := c.Param("id"); id != "" {
		switch {
		case strings.HasPrefix(route, "/v1/purchases/"):
			fields = append(fields, zap.String("purchase_id", id))
		case strings.HasPrefix(route, "/v1/products/"):
			fields = append(fields, zap.String("product_id", id))
		}
	}
	if owner := c.Param("owner"); owner != "" {
		fields = append(fields, zap.String("wallet_owner", owner))
	}
	return fields
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(headerRequestID))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header(headerRequestID, requestID)
	return requestID
}

func accessLevel(route string, status int) zapcore.Level {
	switch {
	case route == "/health" || route == "/metrics":
		return zapcore.DebugLevel
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status == http.StatusTooManyRequests:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
