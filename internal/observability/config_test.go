package observability

import (
	"testing"

	"github.com/smallbiznis/feeflow/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigMapsTelemetry(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppVersion:  "1.2.0",
		Environment: " production ",
		Telemetry: config.TelemetryConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
			Endpoint:       "collector:4318",
			Protocol:       "http",
			SamplingRatio:  0.5,
		},
	})

	assert.Equal(t, "feeflow", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.True(t, cfg.MetricsEnabled)
	assert.False(t, cfg.TracingEnabled)
	assert.Equal(t, "http", cfg.Protocol)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigDefaultsToGRPC(t *testing.T) {
	cfg := LoadConfig(config.Config{AppName: "feeflow-api", Telemetry: config.TelemetryConfig{Protocol: "thrift"}})
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Equal(t, "feeflow-api", cfg.ServiceName)
}

func TestDebug(t *testing.T) {
	assert.True(t, Config{LogLevel: "debug", Environment: "production"}.Debug())
	assert.True(t, Config{Environment: "Test"}.Debug())
	assert.False(t, Config{Environment: "staging"}.Debug())
}
