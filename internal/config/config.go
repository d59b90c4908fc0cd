// Package config holds the process configuration for the follower
// enrichment service.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config represents the application configuration structure. Values are
// read from environment variables, optionally overlaid on a YAML file.
type Config struct {
	// HTTP contains the HTTP server related configuration
	HTTP struct {
		// Addr is the address and port the HTTP server will listen on
		Addr string `env:"HTTP_ADDR" env-default:":3000" yaml:"addr"`
		// ReadHeaderTimeout is the amount of time allowed to read request headers
		ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" env-default:"10s" yaml:"readHeaderTimeout"`
		// RequestTimeout is the maximum time allowed for processing a single request.
		// A full page enrichment issues up to page_size lookups, so this is generous.
		RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" env-default:"2m" yaml:"requestTimeout"`
	} `yaml:"http"`

	// Provider contains the remote data provider configuration
	Provider struct {
		// BaseURL of the provider API
		BaseURL string `env:"PROVIDER_BASE_URL" env-default:"https://api.hikerapi.com" yaml:"baseUrl"`
		// AccessKey authenticates every provider call (REQUIRED)
		AccessKey string `env:"HIKER_API_KEY" yaml:"accessKey"`
		// Timeout per provider HTTP request
		Timeout time.Duration `env:"PROVIDER_TIMEOUT" env-default:"40s" yaml:"timeout"`
		// MaxRetries is the attempt ceiling for transient failures (including the first attempt)
		MaxRetries int `env:"PROVIDER_MAX_RETRIES" env-default:"3" yaml:"maxRetries"`
		// InitialBackoff is the base delay of the exponential retry backoff
		InitialBackoff time.Duration `env:"PROVIDER_INITIAL_BACKOFF" env-default:"500ms" yaml:"initialBackoff"`
	} `yaml:"provider"`

	// Redis configures the optional shared rate-limit cooldown store.
	// An empty Addr keeps the cooldown state in process memory.
	Redis struct {
		Addr     string `env:"REDIS_ADDR" env-default:"" yaml:"addr"`
		Password string `env:"REDIS_PASSWORD" env-default:"" yaml:"password"`
		DB       int    `env:"REDIS_DB" env-default:"0" yaml:"db"`
	} `yaml:"redis"`

	// Log configures structured logging
	Log struct {
		Level  string `env:"LOG_LEVEL" env-default:"info" yaml:"level"`
		Pretty bool   `env:"LOG_PRETTY" env-default:"false" yaml:"pretty"`
	} `yaml:"log"`

	// Defaults applied when a request omits the corresponding query parameter
	Defaults struct {
		PageSize     int `env:"DEFAULT_PAGE_SIZE" env-default:"200" yaml:"pageSize"`
		MinFollowers int `env:"DEFAULT_MIN_FOLLOWERS" env-default:"10000" yaml:"minFollowers"`
		Workers      int `env:"DEFAULT_WORKERS" env-default:"5" yaml:"workers"`
	} `yaml:"defaults"`

	// GracefulShutdownTimeout is the maximum duration to wait for ongoing requests during shutdown
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_TIMEOUT" env-default:"10s" yaml:"gracefulShutdownTimeout"`
}

// Load returns a filled Config. When configPath is non-empty the YAML file
// is read first and environment variables override it.
func Load(configPath string) (*Config, error) {
	var cfg Config

	var err error
	if configPath != "" {
		err = cleanenv.ReadConfig(configPath, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	return &cfg, nil
}
