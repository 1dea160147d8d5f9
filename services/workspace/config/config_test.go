// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianWorkspace/pkg/logging"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/text"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Load.SkipUnrecognizedProjects)
	assert.Equal(t, workspace.Lenient, cfg.Load.Policy())
	assert.Equal(t, 500*time.Millisecond, cfg.Text.RetryDelay)
	assert.Equal(t, 5, cfg.Text.MaxRetries)
	assert.Equal(t, "empty", cfg.Text.FailurePolicy)
}

func TestLoadFs_NoFileNoEnv(t *testing.T) {
	cfg, err := LoadFs(afero.NewMemMapFs(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Text, cfg.Text)
}

func TestLoadFs_YAMLOverridesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/ws.yaml", []byte(`
load:
  skip_unrecognized_projects: false
  load_metadata_for_referenced_projects: true
text:
  retry_delay: 250ms
  failure_policy: error
logging:
  level: debug
server:
  listen: "127.0.0.1:9000"
`), 0o644))

	cfg, err := LoadFs(fs, "/etc/ws.yaml", envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, workspace.Strict, cfg.Load.Policy())
	assert.True(t, cfg.Load.LoadMetadataForReferencedProjects)
	assert.Equal(t, 250*time.Millisecond, cfg.Text.RetryDelay)
	assert.Equal(t, 5, cfg.Text.MaxRetries, "unset keys keep their defaults")
	assert.Equal(t, "error", cfg.Text.FailurePolicy)
	assert.Equal(t, logging.LevelDebug, cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
}

func TestLoadFs_EnvOverridesYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ws.yaml", []byte("text:\n  max_retries: 2\n"), 0o644))

	cfg, err := LoadFs(fs, "/ws.yaml", envMap(map[string]string{
		"WORKSPACE_TEXT_MAX_RETRIES":         "9",
		"WORKSPACE_TEXT_RETRY_DELAY":         "1s",
		"WORKSPACE_PERSIST":                  "true",
		"WORKSPACE_LOG_LEVEL":                "warn",
		"WORKSPACE_SKELETON_STORE_ENABLED":   "true",
		"WORKSPACE_SKELETON_STORE_IN_MEMORY": "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Text.MaxRetries)
	assert.Equal(t, time.Second, cfg.Text.RetryDelay)
	assert.True(t, cfg.Load.Persist)
	assert.Equal(t, logging.LevelWarn, cfg.Logging.Level)
	assert.Equal(t, "empty", cfg.Text.FailurePolicy)

	bc, ok := cfg.SkeletonStore.BadgerConfig()
	require.True(t, ok)
	assert.True(t, bc.InMemory)
}

func TestLoadFs_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("text: [unclosed"), 0o644))

	tests := []struct {
		name  string
		path  string
		env   map[string]string
		isErr error
	}{
		{name: "missing file", path: "/nope.yaml"},
		{name: "malformed yaml", path: "/bad.yaml"},
		{name: "unknown log level", env: map[string]string{"WORKSPACE_LOG_LEVEL": "loud"}},
		{name: "bad duration", env: map[string]string{"WORKSPACE_TEXT_RETRY_DELAY": "soon"}},
		{name: "bad failure policy", env: map[string]string{"WORKSPACE_TEXT_FAILURE_POLICY": "panic"}, isErr: ErrInvalidConfig},
		{name: "negative retries", env: map[string]string{"WORKSPACE_TEXT_MAX_RETRIES": "-1"}, isErr: ErrInvalidConfig},
		{name: "store without path", env: map[string]string{"WORKSPACE_SKELETON_STORE_ENABLED": "true"}, isErr: ErrInvalidConfig},
		{name: "listen without port", env: map[string]string{"WORKSPACE_LISTEN": "localhost"}, isErr: ErrInvalidConfig},
		{name: "unknown exporter", env: map[string]string{"WORKSPACE_METRIC_EXPORTER": "statsd"}, isErr: ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFs(fs, tt.path, envMap(tt.env))
			require.Error(t, err)
			if tt.isErr != nil {
				assert.ErrorIs(t, err, tt.isErr)
			}
		})
	}
}

func TestWorkspaceOptions(t *testing.T) {
	cfg := Default()
	cfg.Load.SkipUnrecognizedProjects = false
	cfg.Load.Watch = true
	cfg.Text.FailurePolicy = "error"
	cfg.Text.MaxRetries = 1

	opts, err := cfg.WorkspaceOptions()
	require.NoError(t, err)
	assert.Equal(t, workspace.Strict, opts.Policy)
	assert.True(t, opts.Watch)
	assert.Equal(t, text.ReturnError, opts.Text.FailurePolicy)
	assert.Equal(t, 1, opts.Text.MaxRetries)
}

func TestStoreConfig_BadgerConfig(t *testing.T) {
	_, ok := StoreConfig{}.BadgerConfig()
	assert.False(t, ok)

	bc, ok := StoreConfig{Enabled: true, Path: "/var/lib/ws"}.BadgerConfig()
	require.True(t, ok)
	assert.Equal(t, "/var/lib/ws", bc.Path)
	assert.False(t, bc.InMemory)
}

func TestWriteDefault_RoundTrips(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, WriteDefault(fs, "/home/u/.aleutian/workspace.yaml"))

	cfg, err := LoadFs(fs, "/home/u/.aleutian/workspace.yaml", nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Load, cfg.Load)
	assert.Equal(t, Default().Text, cfg.Text)
	assert.Equal(t, Default().Logging.Level, cfg.Logging.Level)
}
