package config

import "fmt"

// Validate checks the configuration for internal consistency. It returns all
// problems found rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}

	if c.Registry.Path == "" && c.Registry.URL == "" {
		errs = append(errs, fmt.Errorf("one of registry.path or registry.url must be set"))
	}
	if c.Registry.RefreshSeconds < 1 {
		errs = append(errs, fmt.Errorf("registry.refresh_seconds must be >= 1, got %d", c.Registry.RefreshSeconds))
	}

	if c.Resolver.PatternFloor < 0 || c.Resolver.PatternFloor > 1 {
		errs = append(errs, fmt.Errorf("resolver.pattern_floor must be in [0,1], got %g", c.Resolver.PatternFloor))
	}
	if c.Resolver.LLMWeight < 1 {
		errs = append(errs, fmt.Errorf("resolver.llm_weight must be >= 1, got %d", c.Resolver.LLMWeight))
	}
	if c.Resolver.LLM.Enabled && c.Resolver.LLM.BaseURL == "" && c.Resolver.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("resolver.llm enabled but neither base_url nor api_key configured"))
	}

	if c.Executor.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("executor.max_concurrent must be >= 1, got %d", c.Executor.MaxConcurrent))
	}
	if c.Executor.DefaultTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("executor.default_timeout_seconds must be > 0, got %g", c.Executor.DefaultTimeoutSeconds))
	}
	if c.Executor.DefaultMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("executor.default_max_retries must be >= 0, got %d", c.Executor.DefaultMaxRetries))
	}
	if c.Executor.SigningSecret == "" {
		errs = append(errs, fmt.Errorf("executor.signing_secret must not be empty"))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of debug|info|warn|error, got %q", c.Logging.Level))
	}

	return errs
}
