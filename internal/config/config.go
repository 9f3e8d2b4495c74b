package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied to fields the config file leaves unset.
const (
	DefaultStateDir        = ".callreach"
	DefaultCacheCapacity   = 100
	DefaultHintCapacity    = 1 << 16
	DefaultMaxDepth        = 10
	DefaultMaxFunctions    = 50000
	DefaultQueryTimeout    = 30 * time.Second
	DefaultScanConcurrency = 8
)

// ProjectConfig holds project-level settings loaded from callreach.yml.
type ProjectConfig struct {
	StateDir        string   `yaml:"stateDir,omitempty"`
	CacheCapacity   int      `yaml:"cacheCapacity,omitempty"`
	HintCapacity    int      `yaml:"hintCapacity,omitempty"`
	MaxDepth        *int     `yaml:"maxDepth,omitempty"` // nil means DefaultMaxDepth; 0 is a valid depth
	MaxFunctions    int      `yaml:"maxFunctions,omitempty"`
	QueryTimeout    Duration `yaml:"queryTimeout,omitempty"`
	ScanConcurrency int      `yaml:"scanConcurrency,omitempty"`
	Watch           bool     `yaml:"watch,omitempty"`
	SensitiveFields []string `yaml:"sensitiveFields,omitempty"`
	SensitiveTables []string `yaml:"sensitiveTables,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: queryTimeout: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns a config with every field at its default.
func Default() *ProjectConfig {
	cfg := &ProjectConfig{}
	cfg.applyDefaults()
	return cfg
}

// Load attempts to read callreach.yml or callreach.yaml from the given
// directory. Returns the default config (not an error) if no config file
// exists.
func Load(dir string) (*ProjectConfig, error) {
	for _, name := range []string{"callreach.yml", "callreach.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg ProjectConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		cfg.applyDefaults()
		return &cfg, nil
	}
	return Default(), nil
}

// Validate rejects negative sizes and timeouts.
func (c *ProjectConfig) Validate() error {
	switch {
	case c.CacheCapacity < 0:
		return fmt.Errorf("cacheCapacity must not be negative, got %d", c.CacheCapacity)
	case c.HintCapacity < 0:
		return fmt.Errorf("hintCapacity must not be negative, got %d", c.HintCapacity)
	case c.MaxDepth != nil && *c.MaxDepth < 0:
		return fmt.Errorf("maxDepth must not be negative, got %d", *c.MaxDepth)
	case c.MaxFunctions < 0:
		return fmt.Errorf("maxFunctions must not be negative, got %d", c.MaxFunctions)
	case c.QueryTimeout < 0:
		return fmt.Errorf("queryTimeout must not be negative, got %s", time.Duration(c.QueryTimeout))
	case c.ScanConcurrency < 0:
		return fmt.Errorf("scanConcurrency must not be negative, got %d", c.ScanConcurrency)
	}
	return nil
}

// Depth returns the configured default traversal depth.
func (c *ProjectConfig) Depth() int {
	if c.MaxDepth == nil {
		return DefaultMaxDepth
	}
	return *c.MaxDepth
}

// Timeout returns the per-query wall-clock budget.
func (c *ProjectConfig) Timeout() time.Duration {
	return time.Duration(c.QueryTimeout)
}

func (c *ProjectConfig) applyDefaults() {
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.CacheCapacity == 0 {
		c.CacheCapacity = DefaultCacheCapacity
	}
	if c.HintCapacity == 0 {
		c.HintCapacity = DefaultHintCapacity
	}
	if c.MaxDepth == nil {
		d := DefaultMaxDepth
		c.MaxDepth = &d
	}
	if c.MaxFunctions == 0 {
		c.MaxFunctions = DefaultMaxFunctions
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = Duration(DefaultQueryTimeout)
	}
	if c.ScanConcurrency == 0 {
		c.ScanConcurrency = DefaultScanConcurrency
	}
}
