package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Tools  ToolsConfig  `yaml:"tools"`
	Stream StreamConfig `yaml:"stream"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port            int           `yaml:"port" envconfig:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"` // 0 = none; streams are long-lived
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"SERVER_REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SERVER_SHUTDOWN_TIMEOUT"`
}

// ToolsConfig locates the extractor and transcoder executables.
type ToolsConfig struct {
	ExtractorPath  string        `yaml:"extractor_path" envconfig:"EXTRACTOR_PATH"`
	TranscoderPath string        `yaml:"transcoder_path" envconfig:"TRANSCODER_PATH"`
	VersionTimeout time.Duration `yaml:"version_timeout" envconfig:"TOOLS_VERSION_TIMEOUT"`
}

// StreamConfig holds stream session configuration.
type StreamConfig struct {
	KillTimeout      time.Duration `yaml:"kill_timeout" envconfig:"STREAM_KILL_TIMEOUT"`
	RetainFinished   time.Duration `yaml:"retain_finished" envconfig:"STREAM_RETAIN_FINISHED"`
	JanitorInterval  time.Duration `yaml:"janitor_interval" envconfig:"STREAM_JANITOR_INTERVAL"`
	ProbeEnabled     bool          `yaml:"probe_enabled" envconfig:"STREAM_PROBE_ENABLED"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout" envconfig:"STREAM_PROBE_TIMEOUT"`
	ProbeAttempts    int           `yaml:"probe_attempts" envconfig:"STREAM_PROBE_ATTEMPTS"`
	ProbeUserAgent   string        `yaml:"probe_user_agent" envconfig:"STREAM_PROBE_USER_AGENT"`
	UseProbedLength  bool          `yaml:"use_probed_length" envconfig:"STREAM_USE_PROBED_LENGTH"`
	SubscriberBuffer int           `yaml:"subscriber_buffer" envconfig:"STREAM_SUBSCRIBER_BUFFER"`
	StderrTailLines  int           `yaml:"stderr_tail_lines" envconfig:"STREAM_STDERR_TAIL_LINES"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
}

// Default returns the configuration used when neither the YAML file nor the
// environment sets a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            9850,
			ReadTimeout:     30 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Tools: ToolsConfig{
			VersionTimeout: 5 * time.Second,
		},
		Stream: StreamConfig{
			KillTimeout:      5 * time.Second,
			RetainFinished:   2 * time.Minute,
			JanitorInterval:  30 * time.Second,
			ProbeEnabled:     true,
			ProbeTimeout:     15 * time.Second,
			ProbeAttempts:    2,
			ProbeUserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			UseProbedLength:  true,
			SubscriberBuffer: 64,
			StderrTailLines:  20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from defaults, an optional .env file, an optional
// YAML file and environment variables, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	// .env never overrides variables already set in the process environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Fields carry no default tags, so only variables that are set override.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.RequestTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if c.Stream.KillTimeout <= 0 {
		return fmt.Errorf("STREAM_KILL_TIMEOUT must be positive")
	}
	if c.Stream.RetainFinished < 0 {
		return fmt.Errorf("STREAM_RETAIN_FINISHED must not be negative")
	}
	if c.Stream.RetainFinished > 0 && c.Stream.JanitorInterval <= 0 {
		return fmt.Errorf("STREAM_JANITOR_INTERVAL must be positive when finished sessions are retained")
	}
	if c.Stream.SubscriberBuffer <= 0 {
		return fmt.Errorf("STREAM_SUBSCRIBER_BUFFER must be positive")
	}
	if c.Stream.StderrTailLines < 0 {
		return fmt.Errorf("STREAM_STDERR_TAIL_LINES must not be negative")
	}
	if c.Stream.ProbeEnabled && c.Stream.ProbeTimeout <= 0 {
		return fmt.Errorf("STREAM_PROBE_TIMEOUT must be positive when probing is enabled")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
