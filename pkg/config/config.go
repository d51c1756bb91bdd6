package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Driver is the driver type name; empty selects automatically.
	Driver            string        `yaml:"driver"`
	Device            string        `yaml:"device"`
	SampleRate        uint32        `yaml:"sample_rate"`
	Channels          uint32        `yaml:"channels"`
	Latency           time.Duration `yaml:"latency"`
	LogLevel          string        `yaml:"log_level"`
	MetricsListenAddr string        `yaml:"metrics_listen_addr"`
}

func Default() Config {
	return Config{
		SampleRate: 44100,
		Channels:   2,
		Latency:    50 * time.Millisecond,
		LogLevel:   "info",
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("unable to parse '%s': %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config '%s': %w", path, err)
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	var errs []error
	if cfg.Channels > 2 {
		errs = append(errs, fmt.Errorf("channels must be 1 or 2, got %d", cfg.Channels))
	}
	if cfg.Latency < 0 {
		errs = append(errs, fmt.Errorf("latency must not be negative, got %v", cfg.Latency))
	}
	return errors.Join(errs...)
}
