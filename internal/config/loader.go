package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load loads configuration from a YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, REGISTRY_AGENTS_DIR, ...)
//  2. YAML config file (~/.config/swarmd/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty,
// the default path ~/.config/swarmd/config.yaml is used. A missing
// file is not an error; defaults and environment apply.
//
// Environment variables use an underscore separator and are uppercased.
// The first underscore splits section from field:
//
//	SERVER_HTTP_PORT          -> server.http_port
//	ORCHESTRATOR_STATE_DIR    -> orchestrator.state_dir
//	CONTEXTSTORE_URL          -> contextstore.url
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "swarmd", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		// Split on the first underscore only: section.field_name.
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureConfigDir creates the swarmd config directory if it doesn't exist.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "swarmd")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Registry.AgentsDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Registry.AgentsDir = filepath.Join(home, ".config", "swarmd", "agents")
		}
	}
	if cfg.Registry.Debounce == 0 {
		cfg.Registry.Debounce = 5 * time.Second
	}

	if cfg.Orchestrator.StateDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Orchestrator.StateDir = filepath.Join(home, ".config", "swarmd", "state")
		}
	}
	if cfg.Orchestrator.CompletionScanInterval == 0 {
		cfg.Orchestrator.CompletionScanInterval = 30 * time.Second
	}
	if cfg.Orchestrator.PhaseMonitorInterval == 0 {
		cfg.Orchestrator.PhaseMonitorInterval = 30 * time.Second
	}
	if cfg.Orchestrator.MaxAutoCompletions == 0 {
		cfg.Orchestrator.MaxAutoCompletions = 3
	}

	if cfg.ContextStore.Timeout == 0 {
		cfg.ContextStore.Timeout = 3 * time.Second
	}

	if cfg.Logging.Mode == "" {
		cfg.Logging.Mode = "production"
	}
}
