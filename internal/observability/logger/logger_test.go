package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/freya/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSampleBelowWarnKeepsErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(sampleBelowWarn(core))

	for i := 0; i < samplingInitial*3; i++ {
		log.Info("escrow swept")
		log.Error("ledger invariant violated")
	}

	assert.Equal(t, samplingInitial*3, logs.FilterMessage("ledger invariant violated").Len())
	assert.Less(t, logs.FilterMessage("escrow swept").Len(), samplingInitial*3)
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, "0xc1")

	WithInvoice(WithContext(ctx, zap.New(core)), 7).Info("invoice paid")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "0xc1", fields["actor"])
		assert.Equal(t, uint64(7), fields["invoice_id"])
		assert.NotContains(t, fields, "trace_id")
	}
}
