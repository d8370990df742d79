package buildcoachingprompt

import (
	"time"

	"deal-coach/internal/common/config"
	"deal-coach/internal/common/errors"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
	// TokenBudget caps the insight sections of the system prompt. Zero
	// disables truncation.
	TokenBudget int `mapstructure:"token_budget"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30 * time.Second,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.NewConfigError("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return errors.NewConfigError("max_jobs_active must be positive")
	}
	if c.TokenBudget < 0 {
		return errors.NewConfigError("token_budget must not be negative")
	}
	return nil
}

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config) *Config {
	if customConfig != nil {
		return customConfig
	}

	cfg := DefaultConfig()
	if appConfig == nil {
		return cfg
	}

	if workerCfg, exists := appConfig.Workers[WorkerName]; exists {
		cfg.Enabled = workerCfg.Enabled
		if workerCfg.MaxJobsActive > 0 {
			cfg.MaxJobsActive = workerCfg.MaxJobsActive
		}
		if workerCfg.Timeout > 0 {
			cfg.Timeout = config.GetDuration(workerCfg.Timeout)
		}
	}
	cfg.TokenBudget = appConfig.Context.TokenBudget
	return cfg
}
