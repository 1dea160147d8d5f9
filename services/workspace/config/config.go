// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads workspace settings from YAML and WORKSPACE_* environment
// variables.
//
// Precedence, lowest first: Default(), the YAML file, the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mstoykov/envconfig"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianWorkspace/pkg/logging"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/storage/badger"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/telemetry"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/text"
)

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid workspace config")
)

// Config is the complete workspace configuration.
type Config struct {
	Load          LoadConfig       `yaml:"load"`
	Text          TextConfig       `yaml:"text"`
	SkeletonStore StoreConfig      `yaml:"skeleton_store"`
	Logging       logging.Config   `yaml:"logging"`
	Telemetry     telemetry.Config `yaml:"telemetry"`
	Server        ServerConfig     `yaml:"server"`
}

// LoadConfig controls how solutions are opened.
type LoadConfig struct {
	// SkipUnrecognizedProjects selects the lenient load policy. When false the
	// first load-time failure aborts the open.
	SkipUnrecognizedProjects bool `yaml:"skip_unrecognized_projects"`

	LoadMetadataForReferencedProjects bool `yaml:"load_metadata_for_referenced_projects"`

	// Persist writes accepted text edits back to disk.
	Persist bool `yaml:"persist"`

	// Watch reloads documents edited by other processes.
	Watch bool `yaml:"watch"`
}

// TextConfig controls document text loading.
type TextConfig struct {
	RetryDelay    time.Duration `yaml:"retry_delay" validate:"gt=0"`
	MaxRetries    int           `yaml:"max_retries" validate:"gte=0,lte=100"`
	FailurePolicy string        `yaml:"failure_policy" validate:"oneof=empty error"`
}

// StoreConfig selects the skeleton image store.
type StoreConfig struct {
	Enabled  bool   `yaml:"enabled"`
	InMemory bool   `yaml:"in_memory"`
	Path     string `yaml:"path" validate:"required_if=Enabled true InMemory false"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Listen string `yaml:"listen" validate:"required,hostname_port"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Load: LoadConfig{
			SkipUnrecognizedProjects: true,
		},
		Text: TextConfig{
			RetryDelay:    text.DefaultRetryDelay,
			MaxRetries:    text.DefaultMaxRetries,
			FailurePolicy: text.ReturnEmpty.String(),
		},
		Logging: logging.Config{
			Level:   logging.LevelInfo,
			Service: "workspace",
		},
		Telemetry: telemetry.DefaultConfig(),
		Server: ServerConfig{
			Listen: "localhost:7420",
		},
	}
}

// Load reads path from the OS filesystem. See LoadFs.
func Load(path string) (Config, error) {
	return LoadFs(afero.NewOsFs(), path, os.LookupEnv)
}

// LoadFs builds a Config from defaults, an optional YAML file, and the
// environment.
//
// # Inputs
//
//   - fs: Filesystem holding the YAML file.
//   - path: YAML file. Empty skips the file layer.
//   - lookup: Environment lookup, usually os.LookupEnv. Nil skips the
//     environment layer.
//
// # Outputs
//
//   - Config: Validated configuration.
//   - error: Read, parse or envconfig errors, or ErrInvalidConfig.
func LoadFs(fs afero.Fs, path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read the config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	}
	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// WriteDefault writes Default() to path as YAML, creating parent directories.
func WriteDefault(fs afero.Fs, path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	return afero.WriteFile(fs, path, data, 0o644)
}

// Validate checks struct tags and cross-field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// env mirrors the overridable settings under flat WORKSPACE_* names.
// envconfig leaves fields untouched when their variable is unset, so the
// struct is seeded from the current config and copied back afterwards.
type env struct {
	SkipUnrecognized bool          `envconfig:"WORKSPACE_SKIP_UNRECOGNIZED_PROJECTS"`
	LoadMetadata     bool          `envconfig:"WORKSPACE_LOAD_METADATA_FOR_REFERENCED_PROJECTS"`
	Persist          bool          `envconfig:"WORKSPACE_PERSIST"`
	Watch            bool          `envconfig:"WORKSPACE_WATCH"`
	RetryDelay       time.Duration `envconfig:"WORKSPACE_TEXT_RETRY_DELAY"`
	MaxRetries       int           `envconfig:"WORKSPACE_TEXT_MAX_RETRIES"`
	FailurePolicy    string        `envconfig:"WORKSPACE_TEXT_FAILURE_POLICY"`
	StoreEnabled     bool          `envconfig:"WORKSPACE_SKELETON_STORE_ENABLED"`
	StoreInMemory    bool          `envconfig:"WORKSPACE_SKELETON_STORE_IN_MEMORY"`
	StorePath        string        `envconfig:"WORKSPACE_SKELETON_STORE_PATH"`
	LogLevel         string        `envconfig:"WORKSPACE_LOG_LEVEL"`
	LogDir           string        `envconfig:"WORKSPACE_LOG_DIR"`
	LogJSON          bool          `envconfig:"WORKSPACE_LOG_JSON"`
	TraceExporter    string        `envconfig:"WORKSPACE_TRACE_EXPORTER"`
	MetricExporter   string        `envconfig:"WORKSPACE_METRIC_EXPORTER"`
	Listen           string        `envconfig:"WORKSPACE_LISTEN"`
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	e := env{
		SkipUnrecognized: c.Load.SkipUnrecognizedProjects,
		LoadMetadata:     c.Load.LoadMetadataForReferencedProjects,
		Persist:          c.Load.Persist,
		Watch:            c.Load.Watch,
		RetryDelay:       c.Text.RetryDelay,
		MaxRetries:       c.Text.MaxRetries,
		FailurePolicy:    c.Text.FailurePolicy,
		StoreEnabled:     c.SkeletonStore.Enabled,
		StoreInMemory:    c.SkeletonStore.InMemory,
		StorePath:        c.SkeletonStore.Path,
		LogLevel:         c.Logging.Level.String(),
		LogDir:           c.Logging.LogDir,
		LogJSON:          c.Logging.JSON,
		TraceExporter:    c.Telemetry.TraceExporter,
		MetricExporter:   c.Telemetry.MetricExporter,
		Listen:           c.Server.Listen,
	}
	if err := envconfig.Process("", &e, lookup); err != nil {
		return fmt.Errorf("failed to read WORKSPACE_* environment: %w", err)
	}
	level, err := logging.ParseLevel(e.LogLevel)
	if err != nil {
		return fmt.Errorf("WORKSPACE_LOG_LEVEL: %w", err)
	}

	c.Load = LoadConfig{
		SkipUnrecognizedProjects:          e.SkipUnrecognized,
		LoadMetadataForReferencedProjects: e.LoadMetadata,
		Persist:                           e.Persist,
		Watch:                             e.Watch,
	}
	c.Text = TextConfig{
		RetryDelay:    e.RetryDelay,
		MaxRetries:    e.MaxRetries,
		FailurePolicy: e.FailurePolicy,
	}
	c.SkeletonStore = StoreConfig{
		Enabled:  e.StoreEnabled,
		InMemory: e.StoreInMemory,
		Path:     e.StorePath,
	}
	c.Logging.Level = level
	c.Logging.LogDir = e.LogDir
	c.Logging.JSON = e.LogJSON
	c.Telemetry.TraceExporter = e.TraceExporter
	c.Telemetry.MetricExporter = e.MetricExporter
	c.Server.Listen = e.Listen
	return nil
}

// Policy returns the load policy selected by SkipUnrecognizedProjects.
func (c LoadConfig) Policy() workspace.LoadPolicy {
	if c.SkipUnrecognizedProjects {
		return workspace.Lenient
	}
	return workspace.Strict
}

// WorkspaceOptions converts the load and text sections into workspace.Options.
// The caller fills in Logger, SkeletonStore and any filesystem override.
func (c Config) WorkspaceOptions() (workspace.Options, error) {
	policy, err := text.ParseFailurePolicy(c.Text.FailurePolicy)
	if err != nil {
		return workspace.Options{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	textOpts := text.DefaultOptions()
	textOpts.RetryDelay = c.Text.RetryDelay
	textOpts.MaxRetries = c.Text.MaxRetries
	textOpts.FailurePolicy = policy

	return workspace.Options{
		Policy:                            c.Load.Policy(),
		LoadMetadataForReferencedProjects: c.Load.LoadMetadataForReferencedProjects,
		Persist:                           c.Load.Persist,
		Watch:                             c.Load.Watch,
		Text:                              textOpts,
	}, nil
}

// BadgerConfig returns the store settings, or false when the store is disabled.
func (c StoreConfig) BadgerConfig() (badger.Config, bool) {
	switch {
	case !c.Enabled:
		return badger.Config{}, false
	case c.InMemory:
		return badger.InMemoryConfig(), true
	default:
		return badger.DefaultConfig(c.Path), true
	}
}
