package tracing

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/freya/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "freya/http"

// GinMiddleware opens a server span per request. Ledger identifiers from the
// route are attached so a settlement can be followed across services.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + c.Request.Method + " " + route)
		span.SetAttributes(SafeAttributes(append(ledgerAttributes(c),
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)...)...)

		lastErr := c.Errors.Last()
		switch {
		case status >= http.StatusInternalServerError:
			if lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		case lastErr != nil:
			span.AddEvent("request.rejected", trace.WithAttributes(
				attribute.String("error.code", SafeError(lastErr.Err).Error()),
			))
		}
	}
}

func ledgerAttributes(c *gin.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if actor := obscontext.ActorFromContext(c.Request.Context()); actor != "" {
		attrs = append(attrs, attribute.String("enduser.id", actor))
	}
	if id, err := strconv.ParseUint(c.Param("id"), 10, 64); err == nil {
		attrs = append(attrs, attribute.Int64("ledger.invoice_id", int64(id)))
	}
	if id, err := strconv.ParseUint(c.Param("tokenId"), 10, 64); err == nil {
		attrs = append(attrs, attribute.Int64("ledger.receipt_token_id", int64(id)))
	}
	return attrs
}
