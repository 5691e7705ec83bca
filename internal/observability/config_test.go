package observability

import (
	"testing"

	"github.com/smallbiznis/staybook/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigFillsDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "development",
		AppVersion:  "1.2.3",
		Telemetry:   config.TelemetryConfig{SamplingRatio: 4},
	})

	assert.Equal(t, "staybook", cfg.ServiceName)
	assert.Equal(t, "info", cfg.Telemetry.LogLevel)
	assert.Equal(t, "grpc", cfg.Telemetry.OTLPProtocol)
	assert.Equal(t, 0.1, cfg.Telemetry.SamplingRatio)
	assert.True(t, cfg.Debug())
}

func TestDebugFollowsLevelInProduction(t *testing.T) {
	cfg := Config{Environment: "production", Telemetry: config.TelemetryConfig{LogLevel: "info"}}
	assert.False(t, cfg.Debug())
	assert.False(t, cfg.Logger().IncludeStackOnError)

	cfg.Telemetry.LogLevel = "debug"
	assert.True(t, cfg.Debug())
	assert.True(t, cfg.Logger().Debug)
}

func TestDerivedConfigsShareExporter(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName: "staybook-api",
		Telemetry: config.TelemetryConfig{
			OtelEnabled:   true,
			OTLPEndpoint:  "collector:4318",
			OTLPProtocol:  "http",
			SamplingRatio: 0.5,
		},
	})

	tr := cfg.Tracing()
	m := cfg.Metrics()
	assert.Equal(t, "staybook-api", tr.ServiceName)
	assert.Equal(t, "collector:4318", tr.ExporterEndpoint)
	assert.Equal(t, tr.ExporterEndpoint, m.ExporterEndpoint)
	assert.Equal(t, "http", m.ExporterProtocol)
	assert.Equal(t, 0.5, tr.SamplingRatio)
	assert.True(t, m.Enabled)
}
