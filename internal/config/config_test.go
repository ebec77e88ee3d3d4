package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "realtime_secret: s3cret\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddress != ":8080" {
		t.Errorf("expected default listen address, got %q", cfg.ListenAddress)
	}
	if cfg.DatabasePath != "storypointz.db" {
		t.Errorf("expected default database path, got %q", cfg.DatabasePath)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("expected default logging settings, got %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.CountdownSteps != 3 || cfg.CountdownStep != Duration(time.Second) {
		t.Errorf("expected default countdown, got %d x %v", cfg.CountdownSteps, cfg.CountdownStep)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
listen_address: "127.0.0.1:9000"
base_url: "https://points.example.com"
database_path: /var/lib/spz/data.db
realtime_secret: s3cret
log_level: debug
log_format: json
countdown_steps: 5
countdown_step: 500ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddress != "127.0.0.1:9000" {
		t.Errorf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.BaseURL != "https://points.example.com" {
		t.Errorf("unexpected base URL %q", cfg.BaseURL)
	}
	if cfg.CountdownSteps != 5 || cfg.CountdownStep != Duration(500*time.Millisecond) {
		t.Errorf("unexpected countdown %d x %v", cfg.CountdownSteps, cfg.CountdownStep)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Errorf("unexpected logging settings %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "listen_address: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with secret", func(c *Config) { c.RealtimeSecret = "s" }, false},
		{"missing secret", func(c *Config) {}, true},
		{"bad log format", func(c *Config) { c.RealtimeSecret = "s"; c.LogFormat = "xml" }, true},
		{"bad log level", func(c *Config) { c.RealtimeSecret = "s"; c.LogLevel = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
