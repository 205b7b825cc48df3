// Package config provides configuration loading for swarmd.
//
// Configuration is loaded from a YAML file and environment variables
// with sensible defaults. It covers the HTTP server, the agent
// registry, the orchestrator loops, and the shared context store.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete swarmd configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Registry     RegistryConfig     `koanf:"registry"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	ContextStore ContextStoreConfig `koanf:"contextstore"`
	NATS         NATSConfig         `koanf:"nats"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// RegistryConfig holds agent registry configuration.
type RegistryConfig struct {
	AgentsDir string        `koanf:"agents_dir"`
	Debounce  time.Duration `koanf:"debounce"`
}

// OrchestratorConfig holds coordination loop configuration.
type OrchestratorConfig struct {
	StateDir               string        `koanf:"state_dir"`
	CompletionScanInterval time.Duration `koanf:"completion_scan_interval"`
	PhaseMonitorInterval   time.Duration `koanf:"phase_monitor_interval"`
	MaxAutoCompletions     int           `koanf:"max_auto_completions"`
}

// ContextStoreConfig holds shared context client configuration.
type ContextStoreConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// NATSConfig holds NATS publishing configuration.
type NATSConfig struct {
	URL string `koanf:"url"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Mode string `koanf:"mode"` // "production" or "development"
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - Any loop interval is not positive
//   - The agents or state directory is empty
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Orchestrator.CompletionScanInterval <= 0 {
		return errors.New("completion scan interval must be positive")
	}
	if c.Orchestrator.PhaseMonitorInterval <= 0 {
		return errors.New("phase monitor interval must be positive")
	}
	if c.Orchestrator.MaxAutoCompletions < 0 {
		return errors.New("max auto completions must not be negative")
	}
	if c.Registry.AgentsDir == "" {
		return errors.New("agents directory must be set")
	}
	if c.Orchestrator.StateDir == "" {
		return errors.New("state directory must be set")
	}
	if c.ContextStore.Timeout <= 0 {
		return errors.New("context store timeout must be positive")
	}
	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging mode: %q", c.Logging.Mode)
	}
	return nil
}
