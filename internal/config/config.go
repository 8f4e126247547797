// Package config loads and validates the agent's TOML deployment
// configuration: storage table/bucket names, external-adapter endpoints and
// allowlists, and provider/budget defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration unmarshals TOML strings like "60s" or "15m" into a time.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Storage names the DynamoDB table and S3 bucket backing internal/kvstore
// and internal/objectstore.
type Storage struct {
	TableName  string `toml:"table_name"`
	BucketName string `toml:"bucket_name"`
	Region     string `toml:"region"`
}

// GitHost configures internal/gitforge.
type GitHost struct {
	BaseURL      string   `toml:"base_url"`
	AllowedRepos []string `toml:"allowed_repos"`
}

// Chat configures internal/chatops.
type Chat struct {
	AllowedChannels []string `toml:"allowed_channels"`
}

// Browser configures internal/browserrpc.
type Browser struct {
	Endpoint     string   `toml:"endpoint"`
	AllowedHosts []string `toml:"allowed_hosts"`
}

// Cache holds a Redis URL and a cache TTL (default 120s). No package in this
// tree reads RedisURL; internal/identity's Redis cache takes a ready
// *redis.Client, and there is no external-context cache.
type Cache struct {
	RedisURL string   `toml:"redis_url"`
	TTL      Duration `toml:"ttl"`
}

// Budget sets the default per-job time and cost ceilings internal/budget
// falls back to when a job payload doesn't specify its own.
type Budget struct {
	DefaultTimeBudget Duration `toml:"default_time_budget"`
	DefaultCostUSD    float64  `toml:"default_cost_usd"`
}

// Config is the top-level deployment configuration.
type Config struct {
	Storage Storage `toml:"storage"`
	GitHost GitHost `toml:"git_host"`
	Chat    Chat    `toml:"chat"`
	Browser Browser `toml:"browser"`
	Cache   Cache   `toml:"cache"`
	Budget  Budget  `toml:"budget"`
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Cache.TTL.Duration == 0 {
		cfg.Cache.TTL.Duration = 120 * time.Second
	}
	if cfg.Budget.DefaultTimeBudget.Duration == 0 {
		cfg.Budget.DefaultTimeBudget.Duration = 15 * time.Minute
	}
}

func validate(cfg *Config) error {
	if cfg.Storage.TableName == "" {
		return fmt.Errorf("storage.table_name is required")
	}
	if cfg.Storage.BucketName == "" {
		return fmt.Errorf("storage.bucket_name is required")
	}
	return nil
}

// Load reads and validates a TOML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return &cfg, nil
}
