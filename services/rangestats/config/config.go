// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the rangestats server configuration.
//
// Configuration comes from three layers, later layers winning:
//
//  1. DefaultConfig()
//  2. A YAML file (optional)
//  3. RANGESTATS_* environment variables
//
// The merged result is checked with go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/rangestats/services/rangestats/telemetry"
)

// MaxYAMLFileSize bounds configuration and dataset files read from disk.
const MaxYAMLFileSize = 1 << 20 // 1MB

var (
	// ErrFileTooLarge is returned when a YAML file exceeds MaxYAMLFileSize.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrInvalidConfig wraps validation failures.
	ErrInvalidConfig = errors.New("invalid configuration")
)

var configValidate = validator.New()

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	// Addr is the listen address of the API, e.g. ":8090".
	Addr string `yaml:"addr" validate:"required"`

	// MetricsAddr serves /metrics on a separate listener. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// RateLimit is the sustained request rate allowed per client IP.
	// Zero disables rate limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`

	// RateBurst is the token bucket size per client IP.
	RateBurst int `yaml:"rate_burst" validate:"gte=0"`

	// ShutdownTimeoutSeconds bounds graceful shutdown.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds" validate:"gte=1,lte=300"`
}

// Config is the top-level server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn warning error"`

	// LogDir enables JSON file logging when set.
	LogDir string `yaml:"log_dir"`

	// LogJSON switches console logs to JSON.
	LogJSON bool `yaml:"log_json"`

	// MaxDatasetSize caps the number of values per dataset.
	MaxDatasetSize int `yaml:"max_dataset_size" validate:"gte=1"`

	// MaxDatasets caps the number of datasets held at once.
	MaxDatasets int `yaml:"max_datasets" validate:"gte=1"`

	// DatasetFiles are YAML dataset files loaded at startup.
	DatasetFiles []string `yaml:"dataset_files" validate:"dive,required"`

	// WatchDatasets reloads DatasetFiles when they change on disk.
	WatchDatasets bool `yaml:"watch_datasets"`

	// Telemetry configures tracing and metrics export.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:                   ":8090",
			MetricsAddr:            ":9090",
			RateLimit:              50,
			RateBurst:              100,
			ShutdownTimeoutSeconds: 10,
		},
		LogLevel:       "info",
		MaxDatasetSize: 1_000_000,
		MaxDatasets:    1024,
		Telemetry:      telemetry.DefaultConfig(),
	}
}

// Load reads the YAML file at path over DefaultConfig, applies
// environment overrides, and validates the result. An empty path skips
// the file layer.
//
// Example:
//
//	cfg, err := config.Load("/etc/rangestats/config.yaml")
//	if err != nil {
//	    return fmt.Errorf("load config: %w", err)
//	}
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := ReadYAMLFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ReadYAMLFile reads path, refusing files over MaxYAMLFileSize.
func ReadYAMLFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrFileTooLarge, path, info.Size(), MaxYAMLFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// applyEnv overlays RANGESTATS_* environment variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("RANGESTATS_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v, ok := os.LookupEnv("RANGESTATS_METRICS_ADDR"); ok {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("RANGESTATS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RANGESTATS_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("RANGESTATS_MAX_DATASET_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: RANGESTATS_MAX_DATASET_SIZE: %w", ErrInvalidConfig, err)
		}
		cfg.MaxDatasetSize = n
	}
	if v := os.Getenv("RANGESTATS_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: RANGESTATS_RATE_LIMIT: %w", ErrInvalidConfig, err)
		}
		cfg.Server.RateLimit = f
	}
	return nil
}
