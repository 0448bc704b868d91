// Package config provides configuration loading for extractd.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables. See LoadWithFile for precedence and security rules.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete extractd configuration.
type Config struct {
	Inference InferenceConfig `koanf:"inference"`
	Engine    EngineConfig    `koanf:"engine"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// InferenceConfig holds the inference-service client configuration.
type InferenceConfig struct {
	Provider          string   `koanf:"provider"` // "anthropic", "openai", "stub"
	Model             string   `koanf:"model"`
	APIKey            Secret   `koanf:"api_key"`
	BaseURL           string   `koanf:"base_url"`
	Timeout           Duration `koanf:"timeout"`
	MaxTokens         int      `koanf:"max_tokens"`
	RequestsPerMinute float64  `koanf:"requests_per_minute"`
	Burst             int      `koanf:"burst"`
}

// EngineConfig holds orchestration parameters.
type EngineConfig struct {
	MaxAttempts       int      `koanf:"max_attempts"`       // per-stage attempt bound
	RetryBaseBackoff  Duration `koanf:"retry_base_backoff"` // doubled per attempt
	CarrierConfidence int      `koanf:"carrier_confidence"` // rate-confirmation identity threshold, 0-100
	ChunkSize         int      `koanf:"chunk_size"`         // transcript chunk size, characters
	ChunkOverlap      int      `koanf:"chunk_overlap"`
}

// LoggingConfig holds log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json, console
}

// TelemetryConfig holds OpenTelemetry export configuration.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	ServiceName string  `koanf:"service_name"`
	Endpoint    string  `koanf:"endpoint"` // OTLP gRPC endpoint
	Insecure    bool    `koanf:"insecure"`
	SampleRatio float64 `koanf:"sample_ratio"`
}

// MetricsConfig holds the Prometheus listener configuration.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Inference.Provider == "" {
		cfg.Inference.Provider = "anthropic"
	}
	if cfg.Inference.Timeout == 0 {
		cfg.Inference.Timeout = Duration(60 * time.Second)
	}
	if cfg.Inference.MaxTokens == 0 {
		cfg.Inference.MaxTokens = 2048
	}
	if cfg.Inference.RequestsPerMinute == 0 {
		cfg.Inference.RequestsPerMinute = 50
	}
	if cfg.Inference.Burst == 0 {
		cfg.Inference.Burst = 5
	}

	if cfg.Engine.MaxAttempts == 0 {
		cfg.Engine.MaxAttempts = 3
	}
	if cfg.Engine.RetryBaseBackoff == 0 {
		cfg.Engine.RetryBaseBackoff = Duration(500 * time.Millisecond)
	}
	if cfg.Engine.CarrierConfidence == 0 {
		cfg.Engine.CarrierConfidence = 70
	}
	if cfg.Engine.ChunkSize == 0 {
		cfg.Engine.ChunkSize = 12000
	}
	if cfg.Engine.ChunkOverlap == 0 {
		cfg.Engine.ChunkOverlap = 600
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "extractd"
	}
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = 1.0
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = "localhost:9464"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Inference.Provider {
	case "anthropic", "openai", "stub":
	default:
		return fmt.Errorf("inference provider must be anthropic, openai or stub, got %q", c.Inference.Provider)
	}
	// The API key is checked at client construction, not here: offline and
	// stub flows load config without one.
	if c.Inference.RequestsPerMinute < 0 {
		return errors.New("inference requests_per_minute cannot be negative")
	}

	if c.Engine.MaxAttempts < 1 {
		return fmt.Errorf("engine max_attempts must be >= 1, got %d", c.Engine.MaxAttempts)
	}
	if c.Engine.CarrierConfidence < 0 || c.Engine.CarrierConfidence > 100 {
		return fmt.Errorf("engine carrier_confidence must be 0-100, got %d", c.Engine.CarrierConfidence)
	}
	if c.Engine.ChunkOverlap >= c.Engine.ChunkSize {
		return errors.New("engine chunk_overlap must be smaller than chunk_size")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry endpoint required when telemetry is enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample_ratio must be in [0,1], got %v", c.Telemetry.SampleRatio)
	}

	return nil
}
