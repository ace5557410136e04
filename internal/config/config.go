// Package config loads and validates the schedassist YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"schedassist/internal/llm"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// DataDir is the directory holding the schedule file, the sync-link
	// database, and backups. Defaults to ~/.local/share/schedassist.
	DataDir string `yaml:"data_dir"`

	// LLM configures the natural-language interpreter.
	LLM LLMConfig `yaml:"llm"`

	// Remote configures the remote calendar. Omit the block entirely to run
	// without sync.
	Remote *RemoteConfig `yaml:"remote,omitempty"`

	// Sync configures the daemon's periodic sync schedule.
	Sync SyncConfig `yaml:"sync"`

	// Backup configures snapshot retention.
	Backup BackupConfig `yaml:"backup"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// LLMConfig selects and configures the interpreter backend.
type LLMConfig struct {
	// Provider is "gemini" or "mock". Defaults to "mock" so the tool works
	// out of the box without credentials.
	Provider string `yaml:"provider"`

	// APIKey authenticates against the Gemini API. Falls back to the
	// GEMINI_API_KEY environment variable when unset.
	APIKey string `yaml:"api_key"`

	// Model overrides the Gemini model name.
	Model string `yaml:"model"`

	// Temperature and MaxTokens tune generation. Zero values take the
	// client defaults.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// RemoteConfig holds the remote calendar connection settings.
type RemoteConfig struct {
	// BaseURL is the calendar service base URL (e.g. "https://cal.example.com").
	BaseURL string `yaml:"base_url"`

	// Token is the bearer token used on every request.
	Token string `yaml:"token"`

	// LookBack and LookAhead bound the sync window around the pass time.
	// Default 30 days back, 90 days ahead.
	LookBack  time.Duration `yaml:"look_back"`
	LookAhead time.Duration `yaml:"look_ahead"`
}

// SyncConfig holds the daemon schedule.
type SyncConfig struct {
	// Schedule is a cron expression for periodic sync passes in daemon mode.
	// Defaults to every 15 minutes.
	Schedule string `yaml:"schedule"`
}

// BackupConfig holds snapshot retention settings.
type BackupConfig struct {
	// Keep is the number of snapshots retained after pruning. Defaults to 10.
	Keep int `yaml:"keep"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "schedassist".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Equivalent to the OTEL_EXPORTER_OTLP_HEADERS environment
	// variable. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/schedassist/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "schedassist", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path. A
// missing file yields the defaults rather than an error, so the tool works
// without any setup.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		cfg := &Config{}
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// validate checks that all fields are well-formed and applies defaults.
func (c *Config) validate() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory for data_dir: %w", err)
		}
		c.DataDir = filepath.Join(home, ".local", "share", "schedassist")
	}

	switch c.LLM.Provider {
	case "":
		c.LLM.Provider = "mock"
	case "mock":
	case "gemini":
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		}
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key (or GEMINI_API_KEY) is required for the gemini provider")
		}
	default:
		return fmt.Errorf("llm.provider %q must be \"gemini\" or \"mock\"", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		c.LLM.Model = llm.DefaultModel
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature %v must be between 0 and 2", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens must not be negative")
	}

	if c.Remote != nil {
		u, err := url.ParseRequestURI(c.Remote.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("remote.base_url %q must be a valid http or https URL", c.Remote.BaseURL)
		}
		if c.Remote.Token == "" {
			return fmt.Errorf("remote.token is required when remote is configured")
		}
		if c.Remote.LookBack == 0 {
			c.Remote.LookBack = 30 * 24 * time.Hour
		}
		if c.Remote.LookAhead == 0 {
			c.Remote.LookAhead = 90 * 24 * time.Hour
		}
		if c.Remote.LookBack < 0 || c.Remote.LookAhead < 0 {
			return fmt.Errorf("remote.look_back and remote.look_ahead must not be negative")
		}
	}

	if c.Sync.Schedule == "" {
		c.Sync.Schedule = "*/15 * * * *"
	}
	if _, err := cron.ParseStandard(c.Sync.Schedule); err != nil {
		return fmt.Errorf("sync.schedule %q is not a valid cron expression: %w", c.Sync.Schedule, err)
	}

	if c.Backup.Keep == 0 {
		c.Backup.Keep = 10
	}
	if c.Backup.Keep < 0 {
		return fmt.Errorf("backup.keep must not be negative")
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}
