package config

import (
	"fmt"
	"strings"
	"time"

	"aifiesta/internal/core"
	"aifiesta/internal/util"

	"github.com/caarlos0/env/v11"
)

// ServerConfig server configuration
type ServerConfig struct {
	Port             string   `env:"PORT" envDefault:"7860"`
	GinMode          string   `env:"GIN_MODE" envDefault:"release"`
	ClientAPIKeys    []string `env:"CLIENT_API_KEYS" envSeparator:","`
	RateLimit        int      `env:"RATE_LIMIT" envDefault:"120"`
	CORSAllowOrigin  string   `env:"CORS_ALLOW_ORIGIN" envDefault:"*"`
	ModelsConfigPath string   `env:"MODELS_CONFIG_PATH" envDefault:"models.json"`
	RedisURL         string   `env:"REDIS_URL"`
	StatsFile        string   `env:"STATS_FILE" envDefault:"stats.json"`

	Upstream           UpstreamSettings
	HTTPClientSettings HTTPClientSettings

	Storage core.StorageInterface
	Logger  core.Logger
}

// UpstreamSettings configures the OpenRouter completion calls.
type UpstreamSettings struct {
	APIKey      string        `env:"OPENROUTER_API_KEY"`
	Endpoint    string        `env:"OPENROUTER_API_URL" envDefault:"https://openrouter.ai/api/v1/chat/completions"`
	AppURL      string        `env:"APP_URL"`
	AppTitle    string        `env:"APP_TITLE" envDefault:"AI Fiesta - Model Comparison"`
	Temperature float64       `env:"MODEL_TEMPERATURE" envDefault:"0.7"`
	MaxTokens   int           `env:"MODEL_MAX_TOKENS" envDefault:"4000"`
	Timeout     time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"60s"`
}

// HTTPClientSettings HTTP client configuration
type HTTPClientSettings struct {
	MaxIdleConns        int           `env:"HTTP_MAX_IDLE_CONNS"`
	MaxIdleConnsPerHost int           `env:"HTTP_MAX_IDLE_CONNS_PER_HOST"`
	MaxConnsPerHost     int           `env:"HTTP_MAX_CONNS_PER_HOST"`
	IdleConnTimeout     time.Duration `env:"HTTP_IDLE_CONN_TIMEOUT"`
	TLSHandshakeTimeout time.Duration `env:"HTTP_TLS_HANDSHAKE_TIMEOUT"`
}

// DefaultHTTPClientSettings default HTTP client settings
func DefaultHTTPClientSettings() HTTPClientSettings {
	return HTTPClientSettings{
		MaxIdleConns:        core.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: core.HTTPMaxIdleConnsPerHost,
		MaxConnsPerHost:     core.HTTPMaxConnsPerHost,
		IdleConnTimeout:     core.HTTPIdleConnTimeout,
		TLSHandshakeTimeout: core.HTTPTLSHandshakeTimeout,
	}
}

// DefaultUpstreamSettings returns the generation defaults without a credential.
func DefaultUpstreamSettings() UpstreamSettings {
	return UpstreamSettings{
		Endpoint:    core.OpenRouterChatEndpoint,
		AppURL:      core.DefaultAppURL,
		AppTitle:    core.DefaultAppTitle,
		Temperature: core.DefaultTemperature,
		MaxTokens:   core.DefaultMaxTokens,
		Timeout:     core.DefaultUpstreamTimeout,
	}
}

// LoadServerConfigFromEnv loads server config from environment variables
func LoadServerConfigFromEnv(logger core.Logger) (ServerConfig, error) {
	cfg := ServerConfig{HTTPClientSettings: DefaultHTTPClientSettings()}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.ClientAPIKeys = util.ParseEnvList(strings.Join(cfg.ClientAPIKeys, ","))
	if cfg.Upstream.AppURL == "" {
		cfg.Upstream.AppURL = util.GetEnvWithDefault("NEXT_PUBLIC_APP_URL", core.DefaultAppURL)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	if cfg.Upstream.APIKey == "" {
		logger.Warn("OPENROUTER_API_KEY is empty; every model call will report a configuration error")
	} else {
		logger.Info("OpenRouter credential loaded (%s)", util.MaskSecret(cfg.Upstream.APIKey))
	}

	if len(cfg.ClientAPIKeys) == 0 {
		logger.Info("CLIENT_API_KEYS is empty; /api/compare is open")
	} else {
		logger.Info("Loaded %d client API keys", len(cfg.ClientAPIKeys))
	}

	return cfg, nil
}

func (c ServerConfig) validate() error {
	if c.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be positive, got %d", c.RateLimit)
	}
	if c.Upstream.MaxTokens <= 0 {
		return fmt.Errorf("MODEL_MAX_TOKENS must be positive, got %d", c.Upstream.MaxTokens)
	}
	if c.Upstream.Timeout < 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must not be negative, got %s", c.Upstream.Timeout)
	}
	if c.Upstream.Endpoint == "" {
		return fmt.Errorf("OPENROUTER_API_URL must not be empty")
	}
	return nil
}
