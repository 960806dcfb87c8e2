package config

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration, grouped by domain.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Source   SourceConfig   `yaml:"source"`
	Auth     AuthConfig     `yaml:"auth"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
}

// SourceConfig points at the remote document containing credential pairs.
type SourceConfig struct {
	URL         string `yaml:"url"`
	UserAgent   string `yaml:"user_agent"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// AuthConfig describes the external authentication service.
type AuthConfig struct {
	BaseURL        string `yaml:"base_url"`
	Region         string `yaml:"region"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-call auth service timeout.
func (a AuthConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// RefreshConfig controls cache TTL and verification pacing.
type RefreshConfig struct {
	TTLSeconds          int    `yaml:"ttl_seconds"`
	Policy              string `yaml:"policy"`
	DelayMS             int    `yaml:"delay_ms"`
	BatchSize           int    `yaml:"batch_size"`
	MaxParallel         int    `yaml:"max_parallel"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	StatePath           string `yaml:"state_path"`
}

// TTL returns the snapshot expiry interval.
func (r RefreshConfig) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

// Delay returns the pacing delay between verification calls or batches.
func (r RefreshConfig) Delay() time.Duration {
	return time.Duration(r.DelayMS) * time.Millisecond
}

// PollInterval returns the background refresh check cadence.
func (r RefreshConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalSeconds) * time.Second
}

// SecurityConfig covers logging and endpoint protection.
type SecurityConfig struct {
	Debug      bool   `yaml:"debug"`
	LogFile    string `yaml:"log_file"`
	RefreshKey string `yaml:"refresh_key"`
	RateLimit  int    `yaml:"rate_limit"`
	RateBurst  int    `yaml:"rate_burst"`
}

// Load reads the config file (if present), applies environment overrides,
// fills defaults and validates. A missing file is not an error; env and
// defaults alone can fully configure the service.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			log.WithField("path", path).Debug("config file not found; using env and defaults")
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8317
	}
	if c.Source.MaxAttempts <= 0 {
		c.Source.MaxAttempts = 3
	}
	if c.Source.UserAgent == "" {
		c.Source.UserAgent = "accwatch/1.0"
	}
	if c.Auth.TimeoutSeconds <= 0 {
		c.Auth.TimeoutSeconds = 30
	}
	if c.Refresh.TTLSeconds <= 0 {
		c.Refresh.TTLSeconds = 15 * 60
	}
	if c.Refresh.Policy == "" {
		c.Refresh.Policy = "sequential"
	}
	if c.Refresh.DelayMS <= 0 {
		c.Refresh.DelayMS = 1500
	}
	if c.Refresh.BatchSize <= 0 {
		c.Refresh.BatchSize = 3
	}
	if c.Refresh.MaxParallel <= 0 {
		c.Refresh.MaxParallel = 8
	}
	if c.Refresh.PollIntervalSeconds <= 0 {
		c.Refresh.PollIntervalSeconds = 60
	}
	if c.Security.RateLimit <= 0 {
		c.Security.RateLimit = 20
	}
	if c.Security.RateBurst <= 0 {
		c.Security.RateBurst = 40
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Source.URL == "" {
		return fmt.Errorf("source.url is required")
	}
	if c.Auth.BaseURL == "" {
		return fmt.Errorf("auth.base_url is required")
	}
	switch c.Refresh.Policy {
	case "sequential", "batched", "parallel":
	default:
		return fmt.Errorf("unknown refresh.policy %q", c.Refresh.Policy)
	}
	return nil
}
