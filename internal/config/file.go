package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // zone names must resolve on minimal images

	"gopkg.in/yaml.v3"
)

var ErrInvalidPolicy = errors.New("config: invalid policy value")

// policyFile is the optional YAML overlay for tunables that operators change
// more often than connection settings.
//
//	discovery:
//	  daily_cap: 5
//	  batch_size: 5
//	  timezone: Europe/London
//	presence:
//	  idle_timeout: 2s
//	sync:
//	  buffer: 64
type policyFile struct {
	Discovery struct {
		DailyCap  *int   `yaml:"daily_cap"`
		BatchSize *int   `yaml:"batch_size"`
		Timezone  string `yaml:"timezone"`
	} `yaml:"discovery"`
	Presence struct {
		IdleTimeout string `yaml:"idle_timeout"`
	} `yaml:"presence"`
	Sync struct {
		Buffer *int `yaml:"buffer"`
	} `yaml:"sync"`
}

// Load builds the env config and applies the YAML file named by CONFIG_FILE, if any.
func Load() (*Config, error) {
	cfg := New()
	path := getEnvDefault("CONFIG_FILE", "")
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := cfg.ApplyYAML(raw); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyYAML overlays policy values. Absent keys keep their current value.
func (c *Config) ApplyYAML(raw []byte) error {
	var pf policyFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return err
	}

	if v := pf.Discovery.DailyCap; v != nil {
		if *v < 0 {
			return fmt.Errorf("%w: discovery.daily_cap must be >= 0, got %d", ErrInvalidPolicy, *v)
		}
		c.Discovery.DailyCap = *v
	}
	if v := pf.Discovery.BatchSize; v != nil {
		if *v <= 0 {
			return fmt.Errorf("%w: discovery.batch_size must be > 0, got %d", ErrInvalidPolicy, *v)
		}
		c.Discovery.BatchSize = *v
	}
	if tz := pf.Discovery.Timezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("%w: discovery.timezone: %v", ErrInvalidPolicy, err)
		}
		c.Discovery.Timezone = tz
	}
	if s := pf.Presence.IdleTimeout; s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: presence.idle_timeout %q", ErrInvalidPolicy, s)
		}
		c.Presence.IdleTimeout = d
	}
	if v := pf.Sync.Buffer; v != nil {
		if *v <= 0 {
			return fmt.Errorf("%w: sync.buffer must be > 0, got %d", ErrInvalidPolicy, *v)
		}
		c.Sync.Buffer = *v
	}
	return nil
}
