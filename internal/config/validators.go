// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strconv"
	"strings"

	"github.com/dotandev/eventaggregator/internal/errors"
	"github.com/dotandev/eventaggregator/internal/logger"
)

// Validator validates a specific aspect of the configuration.
type Validator interface {
	Validate(cfg *Config) error
}

var defaultValidators = []Validator{
	LoggingValidator{},
	WorkersValidator{},
	TelemetryValidator{},
	MetricsValidator{},
}

// LoggingValidator checks level, format and rotation limits.
type LoggingValidator struct{}

func (v LoggingValidator) Validate(cfg *Config) error {
	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return errors.WrapValidationError("log_level: " + err.Error())
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "", "text", "json":
	default:
		return errors.WrapValidationError("log_format must be text or json")
	}
	if cfg.LogFile != "" && (cfg.LogMaxSizeMB < 0 || cfg.LogMaxBackups < 0 || cfg.LogMaxAgeDays < 0) {
		return errors.WrapValidationError("log rotation limits cannot be negative")
	}
	return nil
}

// WorkersValidator checks the background pool size.
type WorkersValidator struct{}

func (v WorkersValidator) Validate(cfg *Config) error {
	if cfg.Workers < 0 {
		return errors.WrapValidationError("workers cannot be negative, got " + strconv.Itoa(cfg.Workers))
	}
	return nil
}

// TelemetryValidator checks the OTLP settings when telemetry is enabled.
type TelemetryValidator struct{}

func (v TelemetryValidator) Validate(cfg *Config) error {
	if !cfg.Telemetry.Enabled {
		return nil
	}
	if cfg.Telemetry.ExporterURL == "" {
		return errors.WrapValidationError("telemetry.exporter_url cannot be empty")
	}
	if cfg.Telemetry.ServiceName == "" {
		return errors.WrapValidationError("telemetry.service_name cannot be empty")
	}
	return nil
}

// MetricsValidator checks the Prometheus listen address when metrics are enabled.
type MetricsValidator struct{}

func (v MetricsValidator) Validate(cfg *Config) error {
	if !cfg.Metrics.Enabled {
		return nil
	}
	if !strings.Contains(cfg.Metrics.Addr, ":") {
		return errors.WrapValidationError("metrics.addr must be host:port or :port")
	}
	return nil
}
