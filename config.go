package fluent

import (
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/MasterGenotype/Modular-1/store"
)

// ClientConfig captures client settings loadable from the environment, for
// services that configure their outbound client the same way as the rest
// of their process.
type ClientConfig struct {
	BaseURL      string        `envconfig:"BASE_URL"`
	APIKey       string        `envconfig:"API_KEY"`
	APIKeyHeader string        `envconfig:"API_KEY_HEADER" default:"Apikey"`
	UserAgent    string        `envconfig:"USER_AGENT"`
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"30s"`

	MaxRetries   int           `envconfig:"MAX_RETRIES" default:"3"`
	InitialDelay time.Duration `envconfig:"RETRY_INITIAL_DELAY" default:"100ms"`
	MaxDelay     time.Duration `envconfig:"RETRY_MAX_DELAY" default:"10s"`

	RateLimitEnabled bool   `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	StateFile        string `envconfig:"RATE_LIMIT_STATE_FILE"`

	Debug bool `envconfig:"DEBUG"`
}

// LoadConfig reads a ClientConfig from environment variables under the
// given prefix, e.g. prefix "NEXUS" reads NEXUS_BASE_URL.
func LoadConfig(prefix string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return ClientConfig{}, &ConfigurationError{Problems: []string{err.Error()}}
	}
	return cfg, nil
}

// Options expands the config into client options. The caller appends any
// options the environment cannot express, like loggers or custom filters.
func (cfg ClientConfig) Options() []Option {
	opts := []Option{
		WithTimeout(cfg.Timeout),
		WithDefaultErrorFilter(),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, WithAPIKey(cfg.APIKeyHeader, cfg.APIKey))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, WithUserAgent(cfg.UserAgent))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, WithRetryConfigs(
			NewServerErrorRetryConfig(cfg.MaxRetries, cfg.InitialDelay, cfg.MaxDelay),
			NewRateLimitRetryConfig(cfg.MaxRetries),
		))
	}
	if cfg.RateLimitEnabled {
		rl := NewRateLimiter()
		if cfg.StateFile != "" {
			rl.SetStore(store.NewFileStore(cfg.StateFile))
		}
		opts = append(opts, WithRateLimiter(rl))
	}
	if cfg.Debug {
		opts = append(opts, WithDebug())
	}
	return opts
}
