// Package config provides configuration management for the analysis agent.
//
// Configuration sources (priority order, high to low):
//  1. Environment variables (ANALYSIS_* prefix)
//  2. YAML config file (default: /etc/analysis-agent/config.yaml)
//  3. Built-in defaults
package config

import "context"

// Config contains all configuration fields.
type Config struct {
	// Server configuration
	Server struct {
		Port int
		Host string
		// AllowedOrigins is the list of origins permitted to open WebSocket
		// connections. Use ["*"] to allow any origin (development only).
		AllowedOrigins []string
	}

	// Registry configuration. Exactly one of Path or URL is used: Path loads
	// descriptors from a local JSON file, URL queries an HTTP registry.
	Registry struct {
		Path           string
		URL            string
		RefreshSeconds int
	}

	// Resolver configuration
	Resolver struct {
		// PatternFloor is the confidence below which the pattern method
		// declines to vote.
		PatternFloor float64
		// LLMWeight is the vote weight of the external-model method.
		LLMWeight int
		LLM       struct {
			Enabled        bool
			BaseURL        string
			Model          string
			APIKey         string
			TimeoutSeconds int
		}
	}

	// Executor configuration
	Executor struct {
		MaxConcurrent         int
		DefaultTimeoutSeconds float64
		DefaultMaxRetries     int
		PlanningBudgetSeconds float64
		SigningSecret         string
	}

	// Database configuration (run history)
	Database struct {
		Path string
	}

	// Logging configuration
	Logging struct {
		Level        string
		AppLogPath   string
		AuditLogPath string
		MaxSizeMB    int
		MaxBackups   int
		MaxAgeDays   int
		Compress     bool
	}
}

// Manager defines the interface for configuration access.
type Manager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration file changes and reloads.
	Watch(ctx context.Context) <-chan Config
}

// NewManager creates a new configuration manager for the given file path.
func NewManager(configPath string) Manager {
	return &viperManager{
		configPath: configPath,
		config:     Default(),
		watchChan:  make(chan Config, 1),
	}
}
