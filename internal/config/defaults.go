package config

// Default returns the built-in default configuration. Values are chosen so a
// bare binary can serve requests against a local tools.json registry without
// any file or environment setup.
func Default() *Config {
	cfg := &Config{}

	cfg.Server.Port = 8080
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

	cfg.Registry.Path = "registry/tools.json"
	cfg.Registry.RefreshSeconds = 30

	cfg.Resolver.PatternFloor = 0.4
	cfg.Resolver.LLMWeight = 2
	cfg.Resolver.LLM.Enabled = false
	cfg.Resolver.LLM.Model = "gpt-4o-mini"
	cfg.Resolver.LLM.TimeoutSeconds = 10

	cfg.Executor.MaxConcurrent = 5
	cfg.Executor.DefaultTimeoutSeconds = 30
	cfg.Executor.DefaultMaxRetries = 2
	cfg.Executor.PlanningBudgetSeconds = 5
	cfg.Executor.SigningSecret = "demo-secret"

	cfg.Database.Path = "data/runs.db"

	cfg.Logging.Level = "info"
	cfg.Logging.AppLogPath = "logs/app.log"
	cfg.Logging.AuditLogPath = "logs/audit.log"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	return cfg
}
