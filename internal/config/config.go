// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/dotandev/eventaggregator/internal/errors"
)

// Config represents the configuration of the eventagg CLI and the aggregator it builds.
type Config struct {
	LogLevel  string `toml:"log_level" yaml:"log_level"`
	LogFormat string `toml:"log_format" yaml:"log_format"`
	// LogFile enables a rotating log file instead of stderr.
	LogFile       string `toml:"log_file" yaml:"log_file"`
	LogMaxSizeMB  int    `toml:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `toml:"log_max_backups" yaml:"log_max_backups"`
	LogMaxAgeDays int    `toml:"log_max_age_days" yaml:"log_max_age_days"`
	LogCompress   bool   `toml:"log_compress" yaml:"log_compress"`

	// Workers bounds concurrently running background handlers. 0 means one per CPU.
	Workers int `toml:"workers" yaml:"workers"`

	Telemetry TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	ExporterURL string `toml:"exporter_url" yaml:"exporter_url"`
	ServiceName string `toml:"service_name" yaml:"service_name"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Addr    string `toml:"addr" yaml:"addr"`
}

var defaultConfig = &Config{
	LogLevel:      "info",
	LogFormat:     "text",
	LogMaxSizeMB:  50,
	LogMaxBackups: 10,
	LogMaxAgeDays: 14,
	LogCompress:   true,
	Workers:       0,
	Telemetry: TelemetryConfig{
		ExporterURL: "localhost:4318",
		ServiceName: "eventagg",
	},
	Metrics: MetricsConfig{
		Addr: ":9464",
	},
}

func DefaultConfig() *Config {
	cfg := *defaultConfig
	return &cfg
}

// SearchPaths lists the files Load tries, in order, when no path is given.
func SearchPaths() []string {
	return []string{
		".eventagg.toml",
		filepath.Join(os.ExpandEnv("$HOME"), ".eventagg.toml"),
		"/etc/eventagg/config.toml",
	}
}

// Load builds the configuration from defaults, a config file and EVENTAGG_*
// environment variables, in increasing precedence. An explicit path must exist;
// otherwise the first readable file of SearchPaths is used, if any.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	} else {
		for _, p := range SearchPaths() {
			if _, err := os.Stat(p); err != nil {
				continue
			}
			if err := cfg.LoadFile(p); err != nil {
				return nil, err
			}
			break
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile merges a TOML or YAML file (chosen by extension) into c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapConfigError("failed to read config file", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return errors.WrapConfigError("failed to parse config file "+path, err)
		}
	case ".toml", "":
		if _, err := toml.Decode(string(data), c); err != nil {
			return errors.WrapConfigError("failed to parse config file "+path, err)
		}
	default:
		return errors.WrapConfigError("unsupported config file extension "+filepath.Ext(path), nil)
	}

	return nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = getEnv("EVENTAGG_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("EVENTAGG_LOG_FORMAT", c.LogFormat)
	c.LogFile = getEnv("EVENTAGG_LOG_FILE", c.LogFile)
	c.Telemetry.ExporterURL = getEnv("EVENTAGG_OTLP_ENDPOINT", c.Telemetry.ExporterURL)
	c.Telemetry.ServiceName = getEnv("EVENTAGG_SERVICE_NAME", c.Telemetry.ServiceName)

	if v := os.Getenv("EVENTAGG_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.WrapConfigError("EVENTAGG_WORKERS must be an integer", err)
		}
		c.Workers = n
	}

	// EVENTAGG_TELEMETRY is a boolean env var; parse it explicitly.
	switch strings.ToLower(os.Getenv("EVENTAGG_TELEMETRY")) {
	case "1", "true", "yes":
		c.Telemetry.Enabled = true
	case "0", "false", "no":
		c.Telemetry.Enabled = false
	}

	if addr := os.Getenv("EVENTAGG_METRICS_ADDR"); addr != "" {
		c.Metrics.Enabled = true
		c.Metrics.Addr = addr
	}

	return nil
}

func (c *Config) Validate() error {
	for _, v := range defaultValidators {
		if err := v.Validate(c); err != nil {
			return err
		}
	}
	return nil
}

// JSONLogs reports whether log_format selects the JSON handler.
func (c *Config) JSONLogs() bool {
	return strings.EqualFold(c.LogFormat, "json")
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{LogLevel: %s, LogFormat: %s, Workers: %d, Telemetry: %t, Metrics: %t}",
		c.LogLevel, c.LogFormat, c.Workers, c.Telemetry.Enabled, c.Metrics.Enabled,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
