// Package config loads the optional mdevctl tool configuration. The file
// only carries operator conveniences (log level, filesystem root override);
// device definitions live in the persisted config store, not here.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PathVar names the environment variable overriding the config file path.
const PathVar = "MDEVCTL_CONFIG"

// DefaultPath is consulted when PathVar is unset.
const DefaultPath = "/etc/mdevctl/config.yaml"

// Config is the tool configuration.
type Config struct {
	// LogLevel is the default verbosity, overridable per run with
	// --log-level. One of debug, info, warning, error.
	LogLevel string `yaml:"log_level"`
	// Root overrides the filesystem root, mainly useful for development
	// against a staged sysfs tree.
	Root string `yaml:"root"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{LogLevel: "warning"}
}

// Load reads the configuration from path, falling back to MDEVCTL_CONFIG and
// then to DefaultPath when path is empty. A missing file yields the default
// configuration; a malformed or unrecognized file is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv(PathVar)
		explicit = path != ""
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
}
