package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "30s", "24h", etc.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Database struct {
		MaxConns int32 `yaml:"max_conns"`
	} `yaml:"database"`
	Auction AuctionConfig `yaml:"auction"`
}

// AuctionConfig is the tuning surface consumed by the coordinator and scheduler.
type AuctionConfig struct {
	DefaultDuration      Duration `yaml:"default_duration"`
	MaxDuration          Duration `yaml:"max_duration"`
	MinPrice             float64  `yaml:"min_price"`
	DefaultMinIncrement  float64  `yaml:"default_min_increment"`
	MaxListingsPerSeller int      `yaml:"max_listings_per_seller"`
	SweepInterval        Duration `yaml:"sweep_interval"`
	OpTimeout            Duration `yaml:"op_timeout"`
	WorkerPoolSize       int      `yaml:"worker_pool_size"`
	WorkerQueueSize      int      `yaml:"worker_queue_size"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":9000"
	cfg.Database.MaxConns = 10
	cfg.Auction = AuctionConfig{
		DefaultDuration:      Duration(24 * time.Hour),
		MaxDuration:          Duration(30 * 24 * time.Hour),
		MinPrice:             1.0,
		DefaultMinIncrement:  5.0,
		MaxListingsPerSeller: 5,
		SweepInterval:        Duration(30 * time.Second),
		OpTimeout:            Duration(10 * time.Second),
		WorkerPoolSize:       4,
		WorkerQueueSize:      64,
	}
	return cfg
}

// Load reads the YAML config at path on top of the defaults. Database
// credentials stay in the environment (see db.BuildPostgresDSN); a .env file is
// honored if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auction.MinPrice <= 0 {
		return fmt.Errorf("auction.min_price must be positive")
	}
	if c.Auction.DefaultDuration <= 0 || c.Auction.MaxDuration < c.Auction.DefaultDuration {
		return fmt.Errorf("auction durations are inconsistent")
	}
	if c.Auction.SweepInterval.Std() < time.Second {
		return fmt.Errorf("auction.sweep_interval must be at least 1s")
	}
	if c.Auction.WorkerPoolSize <= 0 {
		return fmt.Errorf("auction.worker_pool_size must be positive")
	}
	return nil
}
