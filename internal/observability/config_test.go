package observability

import (
	"testing"

	"github.com/smallbiznis/freya/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment:       "production",
		AppVersion:        "1.2.0",
		LogLevel:          "warn",
		OTelEnabled:       true,
		OTLPEndpoint:      " collector:4317 ",
		OTLPProtocol:      "grpc",
		OTelSamplingRatio: 4,
	})

	assert.Equal(t, "freya", cfg.ServiceName)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
	assert.Equal(t, "warn", cfg.Logger().Level)
	assert.True(t, cfg.Tracing().Enabled)
	assert.Equal(t, "production", cfg.Metrics().Environment)
}

func TestDebug(t *testing.T) {
	assert.True(t, Config{LogLevel: "DEBUG", Environment: "production"}.Debug())
	assert.True(t, Config{Environment: "local"}.Debug())
	assert.False(t, Config{Environment: "staging"}.Debug())
}
