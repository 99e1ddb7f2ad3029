package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	obscontext "github.com/smallbiznis/freya/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	HeaderRequestID = "X-Request-Id"
	requestIDKey    = "request_id"
)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps a handler error to error_type and error_code fields.
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware logs one line per request, tagged with the request id and
// the invoice or receipt it addressed.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		for _, param := range []string{"id", "tokenId", "address"} {
			if value := strings.TrimSpace(c.Param(param)); value != "" {
				fields = append(fields, zap.String(paramField(param), value))
			}
		}

		if lastErr := c.Errors.Last(); lastErr != nil {
			errorType, errorCode := "internal", lastErr.Err.Error()
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug && status >= http.StatusInternalServerError {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		FromContext(c.Request.Context()).Log(requestLevel(c.Request.Method, route, status), "http_request", fields...)
	}
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
	if requestID == "" {
		requestID = strings.TrimSpace(c.GetString(requestIDKey))
	}
	if requestID == "" {
		requestID = ulid.Make().String()
	}

	c.Set(requestIDKey, requestID)
	c.Header(HeaderRequestID, requestID)
	return requestID
}

// requestLevel keeps health checks and missed lookups quiet and surfaces rejected mutations.
func requestLevel(method, route string, status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case route == "/metrics" || route == "/health":
		return zapcore.DebugLevel
	case method == http.MethodGet && status == http.StatusNotFound:
		return zapcore.DebugLevel
	case method != http.MethodGet && (status == http.StatusForbidden || status == http.StatusConflict):
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

func paramField(param string) string {
	switch param {
	case "id":
		return "invoice_id"
	case "tokenId":
		return "token_id"
	default:
		return param
	}
}
