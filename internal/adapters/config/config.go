// Package config loads the process-wide ambient configuration spec.md §6
// names (RPC_URL/RPC_ENDPOINTS/PORT/DEMO_MODE, plus logging and RPC-client
// tuning) from the environment — the same struct-of-structs-with-envconfig-
// tags, Load()-then-Validate() split the teacher's config package used for
// its much larger exchange/database/AI surface.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/autarch/runtime/internal/rpcclient"
)

// Config is the full set of environment-derived settings cmd/autarch needs
// to bootstrap a Runtime.
type Config struct {
	RPC      RPCConfig     `envconfig:""`
	Server   ServerConfig  `envconfig:""`
	Logging  LoggingConfig `envconfig:"LOG"`
	Health   HealthConfig  `envconfig:"HEALTH"`
	DemoMode bool          `envconfig:"DEMO_MODE" default:"true"`
}

// RPCConfig configures internal/rpcclient.Client's endpoint pool and
// resilience knobs.
type RPCConfig struct {
	URL                string  `envconfig:"RPC_URL" default:"https://api.devnet.solana.com"`
	Endpoints          string  `envconfig:"RPC_ENDPOINTS"`
	MaxRetries         int     `envconfig:"RPC_MAX_RETRIES" default:"3"`
	BaseDelayMs        int     `envconfig:"RPC_BASE_DELAY_MS" default:"1000"`
	HealthCheckMs      int     `envconfig:"RPC_HEALTH_CHECK_MS" default:"30000"`
	RateLimitPerSecond float64 `envconfig:"RPC_RATE_LIMIT_PER_SECOND" default:"0"`
}

// ResolvedEndpoints resolves the effective endpoint pool per spec.md §6:
// RPC_ENDPOINTS (comma-separated) takes precedence over RPC_URL.
func (c RPCConfig) ResolvedEndpoints() []string {
	return rpcclient.ParseEndpoints(c.URL, c.Endpoints)
}

// ClientConfig builds an rpcclient.Config from the environment settings.
func (c RPCConfig) ClientConfig(onSimulationModeChange func(active bool, reason string)) rpcclient.Config {
	return rpcclient.Config{
		Endpoints:              c.ResolvedEndpoints(),
		MaxRetries:             c.MaxRetries,
		BaseDelay:              time.Duration(c.BaseDelayMs) * time.Millisecond,
		HealthCheckInterval:    time.Duration(c.HealthCheckMs) * time.Millisecond,
		RateLimitPerSecond:     c.RateLimitPerSecond,
		OnSimulationModeChange: onSimulationModeChange,
	}
}

// ServerConfig configures the HTTP/SSE listener.
type ServerConfig struct {
	Port      string `envconfig:"PORT" default:"3000"`
	StaticDir string `envconfig:"STATIC_DIR" default:""`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	port := strings.TrimPrefix(c.Port, ":")
	return ":" + port
}

// LoggingConfig configures pkg/logger.
type LoggingConfig struct {
	Level string `envconfig:"LEVEL" default:"info"`
	File  string `envconfig:"FILE" default:""`
}

// HealthConfig configures the liveness/readiness endpoints served
// alongside the spec's own HTTP routes.
type HealthConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the loaded configuration is internally consistent.
func (c *Config) Validate() error {
	if len(c.RPC.ResolvedEndpoints()) == 0 {
		return fmt.Errorf("no RPC endpoint configured: set RPC_URL or RPC_ENDPOINTS")
	}
	if c.RPC.MaxRetries < 0 {
		return fmt.Errorf("RPC_MAX_RETRIES must be >= 0")
	}
	if c.RPC.BaseDelayMs <= 0 {
		return fmt.Errorf("RPC_BASE_DELAY_MS must be positive")
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		return fmt.Errorf("PORT must be non-empty")
	}
	return nil
}
