package observability

import (
	"strings"

	"github.com/smallbiznis/feeflow/internal/config"
)

// Config is the observability view of the application configuration.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	TracingEnabled bool
	MetricsEnabled bool
	Endpoint       string
	Protocol       string
	SamplingRatio  float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "feeflow"
	}
	protocol := cfg.Telemetry.Protocol
	if protocol != "http" {
		protocol = "grpc"
	}

	return Config{
		ServiceName:    serviceName,
		Environment:    strings.TrimSpace(cfg.Environment),
		Version:        strings.TrimSpace(cfg.AppVersion),
		LogLevel:       cfg.Telemetry.LogLevel,
		LogFormat:      cfg.Telemetry.LogFormat,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Protocol:       protocol,
		SamplingRatio:  cfg.Telemetry.SamplingRatio,
	}
}

// Debug reports whether verbose request logging and stack traces are wanted.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
