package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfigFile places content at ~/.config/extractd/config.yaml under the
// test's fake home directory and returns the full path.
func writeConfigFile(t *testing.T, home, content string, perm os.FileMode) string {
	t.Helper()
	dir := filepath.Join(home, ".config", "extractd")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadWithFileDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	// No config file: defaults plus whatever the environment carries.
	cfg, err := LoadWithFile("")
	if err != nil {
		t.Fatalf("LoadWithFile: %v", err)
	}

	if cfg.Inference.Provider != "anthropic" {
		t.Errorf("Inference.Provider = %q, want anthropic", cfg.Inference.Provider)
	}
	if cfg.Inference.Timeout.Duration() != 60*time.Second {
		t.Errorf("Inference.Timeout = %v, want 60s", cfg.Inference.Timeout.Duration())
	}
	if cfg.Inference.MaxTokens != 2048 {
		t.Errorf("Inference.MaxTokens = %d, want 2048", cfg.Inference.MaxTokens)
	}
	if cfg.Engine.MaxAttempts != 3 {
		t.Errorf("Engine.MaxAttempts = %d, want 3", cfg.Engine.MaxAttempts)
	}
	if cfg.Engine.RetryBaseBackoff.Duration() != 500*time.Millisecond {
		t.Errorf("Engine.RetryBaseBackoff = %v, want 500ms", cfg.Engine.RetryBaseBackoff.Duration())
	}
	if cfg.Engine.CarrierConfidence != 70 {
		t.Errorf("Engine.CarrierConfidence = %d, want 70", cfg.Engine.CarrierConfidence)
	}
	if cfg.Engine.ChunkSize != 12000 {
		t.Errorf("Engine.ChunkSize = %d, want 12000", cfg.Engine.ChunkSize)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
	if cfg.Telemetry.ServiceName != "extractd" {
		t.Errorf("Telemetry.ServiceName = %q, want extractd", cfg.Telemetry.ServiceName)
	}
	if cfg.Metrics.Addr != "localhost:9464" {
		t.Errorf("Metrics.Addr = %q, want localhost:9464", cfg.Metrics.Addr)
	}
}

func TestLoadWithFileYAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfigFile(t, home, `
inference:
  provider: stub
  model: claude-sonnet-4-5
  max_tokens: 1024
engine:
  max_attempts: 5
  carrier_confidence: 80
logging:
  level: debug
  format: console
`, 0o600)

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile: %v", err)
	}

	if cfg.Inference.Provider != "stub" {
		t.Errorf("Inference.Provider = %q, want stub", cfg.Inference.Provider)
	}
	if cfg.Inference.Model != "claude-sonnet-4-5" {
		t.Errorf("Inference.Model = %q, want claude-sonnet-4-5", cfg.Inference.Model)
	}
	if cfg.Inference.MaxTokens != 1024 {
		t.Errorf("Inference.MaxTokens = %d, want 1024", cfg.Inference.MaxTokens)
	}
	if cfg.Engine.MaxAttempts != 5 {
		t.Errorf("Engine.MaxAttempts = %d, want 5", cfg.Engine.MaxAttempts)
	}
	if cfg.Engine.CarrierConfidence != 80 {
		t.Errorf("Engine.CarrierConfidence = %d, want 80", cfg.Engine.CarrierConfidence)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %q, want console", cfg.Logging.Format)
	}
	// Unset fields still get defaults.
	if cfg.Engine.ChunkSize != 12000 {
		t.Errorf("Engine.ChunkSize = %d, want default 12000", cfg.Engine.ChunkSize)
	}
}

func TestLoadWithFileEnvOverridesYAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfigFile(t, home, `
inference:
  provider: anthropic
  api_key: file-key
engine:
  max_attempts: 5
`, 0o600)

	t.Setenv("INFERENCE_PROVIDER", "stub")
	t.Setenv("ENGINE_MAX_ATTEMPTS", "2")
	t.Setenv("INFERENCE_REQUESTS_PER_MINUTE", "10")

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile: %v", err)
	}

	if cfg.Inference.Provider != "stub" {
		t.Errorf("Inference.Provider = %q, want stub (env override)", cfg.Inference.Provider)
	}
	if cfg.Engine.MaxAttempts != 2 {
		t.Errorf("Engine.MaxAttempts = %d, want 2 (env override)", cfg.Engine.MaxAttempts)
	}
	if cfg.Inference.RequestsPerMinute != 10 {
		t.Errorf("Inference.RequestsPerMinute = %v, want 10", cfg.Inference.RequestsPerMinute)
	}
	if cfg.Inference.APIKey.Value() != "file-key" {
		t.Errorf("Inference.APIKey = %q, want file value preserved", cfg.Inference.APIKey.Value())
	}
}

func TestLoadWithFileRejectsInsecurePermissions(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfigFile(t, home, "inference:\n  provider: stub\n", 0o644)

	_, err := LoadWithFile(path)
	if err == nil {
		t.Fatal("expected error for 0644 config file")
	}
	if !strings.Contains(err.Error(), "insecure config file permissions") {
		t.Errorf("error = %v, want permission complaint", err)
	}
}

func TestLoadWithFileReadOnlyPermitted(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfigFile(t, home, "inference:\n  provider: stub\n", 0o400)

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile: %v", err)
	}
	if cfg.Inference.Provider != "stub" {
		t.Errorf("Inference.Provider = %q, want stub", cfg.Inference.Provider)
	}
}

func TestLoadWithFileRejectsOutsideAllowedDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	outside := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(outside, []byte("inference:\n  provider: stub\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := LoadWithFile(outside)
	if err == nil {
		t.Fatal("expected error for config outside allowed directories")
	}
	if !strings.Contains(err.Error(), "config file must be in") {
		t.Errorf("error = %v, want path restriction complaint", err)
	}
}

func TestLoadWithFileValidationFailure(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfigFile(t, home, `
inference:
  provider: nonexistent
`, 0o600)

	_, err := LoadWithFile(path)
	if err == nil {
		t.Fatal("expected validation error for unknown provider")
	}
	if !strings.Contains(err.Error(), "inference provider must be") {
		t.Errorf("error = %v, want provider complaint", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:   "stub provider without key is valid",
			mutate: func(c *Config) { c.Inference.Provider = "stub" },
		},
		{
			name:   "anthropic provider without key is valid at load time",
			mutate: func(c *Config) { c.Inference.Provider = "anthropic" },
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Inference.Provider = "gemini" },
			wantErr: "inference provider must be",
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.Inference.RequestsPerMinute = -1 },
			wantErr: "requests_per_minute",
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *Config) { c.Engine.MaxAttempts = -1 },
			wantErr: "max_attempts",
		},
		{
			name:    "carrier confidence out of range",
			mutate:  func(c *Config) { c.Engine.CarrierConfidence = 101 },
			wantErr: "carrier_confidence",
		},
		{
			name:    "chunk overlap too large",
			mutate:  func(c *Config) { c.Engine.ChunkOverlap = c.Engine.ChunkSize },
			wantErr: "chunk_overlap",
		},
		{
			name:    "bad logging format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging format",
		},
		{
			name:    "telemetry enabled without endpoint",
			mutate:  func(c *Config) { c.Telemetry.Enabled = true },
			wantErr: "telemetry endpoint",
		},
		{
			name:    "sample ratio out of range",
			mutate:  func(c *Config) { c.Telemetry.SampleRatio = 1.5 },
			wantErr: "sample_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
