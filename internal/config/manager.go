package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperManager implements Manager using Viper.
type viperManager struct {
	configPath string
	viper      *viper.Viper
	watchChan  chan Config

	mu     sync.RWMutex
	config *Config
}

// Load loads configuration from file, environment, and defaults.
func (m *viperManager) Load(ctx context.Context) error {
	m.viper = viper.New()
	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("ANALYSIS")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.viper.ReadInConfig(); err != nil {
		// Missing file is fine; defaults plus env vars carry the config.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := Default()
	m.apply(cfg)

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns the current configuration.
func (m *viperManager) Get(ctx context.Context) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Validate validates the loaded configuration.
func (m *viperManager) Validate(ctx context.Context) error {
	errs := m.Get(ctx).Validate()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Watch re-reads the config file on change and publishes the new Config.
func (m *viperManager) Watch(ctx context.Context) <-chan Config {
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		cfg := Default()
		m.apply(cfg)
		if len(cfg.Validate()) > 0 {
			return // keep serving the last good config
		}
		m.mu.Lock()
		m.config = cfg
		m.mu.Unlock()
		select {
		case m.watchChan <- *cfg:
		default:
		}
	})
	m.viper.WatchConfig()
	return m.watchChan
}

func (m *viperManager) setDefaults() {
	d := Default()
	m.viper.SetDefault("server.port", d.Server.Port)
	m.viper.SetDefault("server.host", d.Server.Host)
	m.viper.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	m.viper.SetDefault("registry.path", d.Registry.Path)
	m.viper.SetDefault("registry.url", d.Registry.URL)
	m.viper.SetDefault("registry.refresh_seconds", d.Registry.RefreshSeconds)
	m.viper.SetDefault("resolver.pattern_floor", d.Resolver.PatternFloor)
	m.viper.SetDefault("resolver.llm_weight", d.Resolver.LLMWeight)
	m.viper.SetDefault("resolver.llm.enabled", d.Resolver.LLM.Enabled)
	m.viper.SetDefault("resolver.llm.base_url", d.Resolver.LLM.BaseURL)
	m.viper.SetDefault("resolver.llm.model", d.Resolver.LLM.Model)
	m.viper.SetDefault("resolver.llm.timeout_seconds", d.Resolver.LLM.TimeoutSeconds)
	m.viper.SetDefault("executor.max_concurrent", d.Executor.MaxConcurrent)
	m.viper.SetDefault("executor.default_timeout_seconds", d.Executor.DefaultTimeoutSeconds)
	m.viper.SetDefault("executor.default_max_retries", d.Executor.DefaultMaxRetries)
	m.viper.SetDefault("executor.planning_budget_seconds", d.Executor.PlanningBudgetSeconds)
	m.viper.SetDefault("executor.signing_secret", d.Executor.SigningSecret)
	m.viper.SetDefault("database.path", d.Database.Path)
	m.viper.SetDefault("logging.level", d.Logging.Level)
	m.viper.SetDefault("logging.app_log_path", d.Logging.AppLogPath)
	m.viper.SetDefault("logging.audit_log_path", d.Logging.AuditLogPath)
	m.viper.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.compress", d.Logging.Compress)
}

// apply copies viper values onto cfg, with env overrides for secrets.
func (m *viperManager) apply(cfg *Config) {
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.Host = m.viper.GetString("server.host")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")

	cfg.Registry.Path = m.viper.GetString("registry.path")
	cfg.Registry.URL = m.viper.GetString("registry.url")
	cfg.Registry.RefreshSeconds = m.viper.GetInt("registry.refresh_seconds")

	cfg.Resolver.PatternFloor = m.viper.GetFloat64("resolver.pattern_floor")
	cfg.Resolver.LLMWeight = m.viper.GetInt("resolver.llm_weight")
	cfg.Resolver.LLM.Enabled = m.viper.GetBool("resolver.llm.enabled")
	cfg.Resolver.LLM.BaseURL = m.viper.GetString("resolver.llm.base_url")
	cfg.Resolver.LLM.Model = m.viper.GetString("resolver.llm.model")
	cfg.Resolver.LLM.TimeoutSeconds = m.viper.GetInt("resolver.llm.timeout_seconds")

	cfg.Executor.MaxConcurrent = m.viper.GetInt("executor.max_concurrent")
	cfg.Executor.DefaultTimeoutSeconds = m.viper.GetFloat64("executor.default_timeout_seconds")
	cfg.Executor.DefaultMaxRetries = m.viper.GetInt("executor.default_max_retries")
	cfg.Executor.PlanningBudgetSeconds = m.viper.GetFloat64("executor.planning_budget_seconds")
	cfg.Executor.SigningSecret = m.viper.GetString("executor.signing_secret")

	cfg.Database.Path = m.viper.GetString("database.path")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.AppLogPath = m.viper.GetString("logging.app_log_path")
	cfg.Logging.AuditLogPath = m.viper.GetString("logging.audit_log_path")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")
	cfg.Logging.Compress = m.viper.GetBool("logging.compress")

	// Sensitive values come from the environment only, never the YAML file.
	if key := os.Getenv("ANALYSIS_LLM_API_KEY"); key != "" {
		cfg.Resolver.LLM.APIKey = key
	}
	if secret := os.Getenv("ANALYSIS_SIGNING_SECRET"); secret != "" {
		cfg.Executor.SigningSecret = secret
	}
}
