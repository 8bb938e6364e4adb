// Package config loads engine settings from an optional YAML file with
// environment overrides, matching the deployment conventions of the
// rest of the platform (DATABASE_URL, REDIS_URL, PORT).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"lastmile/internal/routing"
)

// LogConfig controls the root logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// ProviderConfig configures one external HTTP provider.
type ProviderConfig struct {
	BaseURL           string  `yaml:"baseUrl"`
	APIKey            string  `yaml:"apiKey"`
	TimeoutSeconds    int     `yaml:"timeoutSeconds"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
}

// Routing converts the provider settings for the routing clients.
func (p ProviderConfig) Routing() routing.Config {
	return routing.Config{
		BaseURL:           p.BaseURL,
		APIKey:            p.APIKey,
		Timeout:           time.Duration(p.TimeoutSeconds) * time.Second,
		RequestsPerSecond: p.RequestsPerSecond,
	}
}

// UpstreamConfig points at the stop source.
type UpstreamConfig struct {
	BaseURL        string `yaml:"baseUrl"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// Config is the full engine configuration.
type Config struct {
	Addr        string         `yaml:"addr"`
	DatabaseURL string         `yaml:"databaseUrl"`
	RedisURL    string         `yaml:"redisUrl"`
	Log         LogConfig      `yaml:"log"`
	Routing     ProviderConfig `yaml:"routing"`
	Optimizer   ProviderConfig `yaml:"optimizer"`
	Upstream    UpstreamConfig `yaml:"upstream"`
}

// Load reads the YAML file at path (skipped when path is empty) and
// applies environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Config{
		Addr: ":8080",
		Log:  LogConfig{Level: "info"},
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ROUTING_URL"); v != "" {
		cfg.Routing.BaseURL = v
	}
	if v := os.Getenv("ROUTING_API_KEY"); v != "" {
		cfg.Routing.APIKey = v
	}
	if v := os.Getenv("OPTIMIZER_URL"); v != "" {
		cfg.Optimizer.BaseURL = v
	}
	if v := os.Getenv("UPSTREAM_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
}
