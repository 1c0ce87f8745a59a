package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/andreyvit/docmap"
)

// Config holds the CLI configuration.
type Config struct {
	Path     string    `yaml:"path"`
	Backend  string    `yaml:"backend"` // bolt, leveldb, memory
	Mapping  string    `yaml:"mapping"`
	Verbose  bool      `yaml:"verbose"`
	MmapSize int       `yaml:"mmap_size"`
	Log      LogConfig `yaml:"log"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

const defaultMapping = "document_id_to_user_id"

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Path:    "docmap.db",
		Backend: string(docmap.BackendBolt),
		Mapping: defaultMapping,
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// LoadConfig loads the configuration.
// Order: defaults -> file (if any) -> ApplyEnvOverrides -> Validate
func LoadConfig(file string) (*Config, error) {
	cfg := DefaultConfig()

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DOCMAP_PATH"); v != "" {
		c.Path = v
	}
	if v := os.Getenv("DOCMAP_BACKEND"); v != "" {
		c.Backend = v
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch docmap.Backend(c.Backend) {
	case docmap.BackendBolt, docmap.BackendLevelDB:
		if c.Path == "" {
			return fmt.Errorf("path is required for the %s backend", c.Backend)
		}
	case docmap.BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Mapping == "" {
		return fmt.Errorf("mapping name is required")
	}
	if c.MmapSize < 0 {
		return fmt.Errorf("mmap_size must not be negative")
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

func (c LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Level))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.Level)
	}
	return level, nil
}

// NewLogger builds the logger described by the configuration.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := c.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c *Config) options(logger *slog.Logger) docmap.Options {
	return docmap.Options{
		Backend:  docmap.Backend(c.Backend),
		Logger:   logger,
		Verbose:  c.Verbose,
		MmapSize: c.MmapSize,
	}
}
