package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGinMiddlewareRecordsLedgerSpan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	r := gin.New()
	r.Use(GinMiddleware())
	r.POST("/v1/invoices/:id/pay", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusConflict)
	})
	r.GET("/v1/receipts/:tokenId", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/invoices/12/pay", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/receipts/3", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	pay := spans[0]
	assert.Equal(t, "HTTP POST /v1/invoices/:id/pay", pay.Name())
	assert.Contains(t, pay.Attributes(), attribute.Int64("ledger.invoice_id", 12))
	assert.NotEqual(t, codes.Error, pay.Status().Code)
	require.Len(t, pay.Events(), 1)
	assert.Equal(t, "request.rejected", pay.Events()[0].Name)

	receipt := spans[1]
	assert.Contains(t, receipt.Attributes(), attribute.Int64("ledger.receipt_token_id", 3))
	assert.Equal(t, codes.Error, receipt.Status().Code)
}
