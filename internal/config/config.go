// Package config loads the runtime configuration from an optional YAML
// file and the environment. Environment variables win over file values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide runtime configuration. Per-conversation
// settings (provider, model, tools) arrive over the control channel.
type Config struct {
	// BackendWSURL is the control-channel websocket endpoint.
	BackendWSURL string `yaml:"backend_ws_url"`

	// ContainerToken authenticates this runtime to the backend.
	ContainerToken string `yaml:"container_token"`

	// Workspace is the filesystem root all file tools are confined to.
	Workspace string `yaml:"workspace"`

	// SearchEndpoint overrides the web_search backend URL.
	SearchEndpoint string `yaml:"search_endpoint"`

	Logging LoggingConfig `yaml:"logging"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load builds the configuration. An empty path skips the file and uses
// environment and defaults only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	for env, target := range map[string]*string{
		"BACKEND_WS_URL":        &cfg.BackendWSURL,
		"CONTAINER_TOKEN":       &cfg.ContainerToken,
		"LOOPD_WORKSPACE":       &cfg.Workspace,
		"LOOPD_SEARCH_ENDPOINT": &cfg.SearchEndpoint,
		"LOOPD_LOG_LEVEL":       &cfg.Logging.Level,
		"LOOPD_LOG_FORMAT":      &cfg.Logging.Format,
	} {
		if value := os.Getenv(env); value != "" {
			*target = value
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Workspace == "" {
		cfg.Workspace = "/workspace"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the fields serve cannot run without.
func (c *Config) Validate() error {
	if c.BackendWSURL == "" {
		return errors.New("backend_ws_url is required (set BACKEND_WS_URL)")
	}
	return nil
}

// NewLogger builds the process logger from the logging section.
func (l LoggingConfig) NewLogger() *slog.Logger {
	var level slog.Level
	switch l.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
