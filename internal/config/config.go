package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings
// like "500ms" or "2s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the top-level server configuration.
type Config struct {
	// ListenAddress is the TCP address the HTTP server binds to.
	// Defaults to :8080.
	ListenAddress string `yaml:"listen_address"`

	// BaseURL is the externally visible URL of the server, used when
	// building session join links and QR codes. Defaults to
	// http://localhost:8080.
	BaseURL string `yaml:"base_url"`

	// DatabasePath is the SQLite database file. Defaults to
	// storypointz.db in the working directory.
	DatabasePath string `yaml:"database_path"`

	// RealtimeSecret signs presence channel subscriptions. Required;
	// there is no default because a guessable secret lets anyone join
	// a channel under a forged identity.
	RealtimeSecret string `yaml:"realtime_secret"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// LogFormat is "text" or "json". Defaults to text.
	LogFormat string `yaml:"log_format"`

	// HTTPLogging enables per-request logging at startup.
	HTTPLogging bool `yaml:"http_logging"`

	// CountdownSteps is the number of ticks in the reveal countdown.
	// Defaults to 3.
	CountdownSteps int `yaml:"countdown_steps"`

	// CountdownStep is the duration of one countdown tick.
	// Defaults to 1s.
	CountdownStep Duration `yaml:"countdown_step"`
}

// Default returns a Config with all defaults applied and no secret set.
func Default() *Config {
	return &Config{
		ListenAddress:  ":8080",
		BaseURL:        "http://localhost:8080",
		DatabasePath:   "storypointz.db",
		LogLevel:       "info",
		LogFormat:      "text",
		CountdownSteps: 3,
		CountdownStep:  Duration(time.Second),
	}
}

// Load reads a YAML configuration file and applies defaults for any
// field left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()

	return config, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.ListenAddress == "" {
		c.ListenAddress = d.ListenAddress
	}
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.DatabasePath == "" {
		c.DatabasePath = d.DatabasePath
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	if c.CountdownSteps <= 0 {
		c.CountdownSteps = d.CountdownSteps
	}
	if c.CountdownStep <= 0 {
		c.CountdownStep = d.CountdownStep
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.RealtimeSecret == "" {
		return fmt.Errorf("realtime_secret is required")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log_format %q (supported: text, json)", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log_level %q (supported: debug, info, warn, error)", c.LogLevel)
	}
	return nil
}
