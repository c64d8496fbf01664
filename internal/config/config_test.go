// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	beaconerrors "github.com/tombee/beacon/pkg/errors"
)

var envKeys = []string{
	"BEACON_API_KEY", "BEACON_ENDPOINT", "BEACON_PROJECT", "BEACON_ENVIRONMENT",
	"BEACON_COMMIT_SHA", "BEACON_EXPORTER", "BEACON_BATCH_SIZE", "BEACON_FLUSH_INTERVAL",
	"BEACON_ERROR_SAMPLE_RATE", "BEACON_REPLAY_SAMPLE_RATE", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileOverDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
project_name: checkout
environment: staging
batch:
  size: 25
  flush_interval: 2s
errors:
  sample_rate: 0
session:
  inactivity_timeout: 10m
exporter:
  type: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "checkout", cfg.ProjectName)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 25, cfg.Batch.Size)
	assert.Equal(t, 2*time.Second, cfg.Batch.FlushInterval)
	assert.Equal(t, 10*time.Second, cfg.Batch.MaxAge)
	assert.Zero(t, cfg.Errors.SampleRate, "explicit zero sample rate must survive defaults")
	assert.Equal(t, 10*time.Minute, cfg.Session.InactivityTimeout)
	assert.Equal(t, 4*time.Hour, cfg.Session.MaxLength)
	assert.Equal(t, "console", cfg.Exporter.Type)
	assert.Equal(t, 60*time.Second, cfg.Gatekeeper.TTL)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "project_name: from-file\nbatch:\n  size: 10\n")

	t.Setenv("BEACON_PROJECT", "from-env")
	t.Setenv("BEACON_API_KEY", "bk_123")
	t.Setenv("BEACON_ENDPOINT", "https://ingest.example.com")
	t.Setenv("BEACON_ENVIRONMENT", "prod")
	t.Setenv("BEACON_COMMIT_SHA", "deadbeef")
	t.Setenv("BEACON_BATCH_SIZE", "50")
	t.Setenv("BEACON_FLUSH_INTERVAL", "750ms")
	t.Setenv("BEACON_ERROR_SAMPLE_RATE", "0.25")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.ProjectName)
	assert.Equal(t, "bk_123", cfg.APIKey)
	assert.Equal(t, "https://ingest.example.com", cfg.Endpoint)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, "deadbeef", cfg.CommitSHA)
	assert.Equal(t, 50, cfg.Batch.Size)
	assert.Equal(t, 750*time.Millisecond, cfg.Batch.FlushInterval)
	assert.Equal(t, 0.25, cfg.Errors.SampleRate)
}

func TestLoadIgnoresUnparseableEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("BEACON_PROJECT", "p")
	t.Setenv("BEACON_BATCH_SIZE", "lots")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Batch.Size)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

	var ce *beaconerrors.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "config_file", ce.Key)
}

func TestReadSkipsValidation(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "storage:\n  path: /tmp/beacon.db\n")

	_, err := Load(path)
	require.Error(t, err)

	cfg, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/beacon.db", cfg.Storage.Path)
	assert.Empty(t, cfg.ProjectName)
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeFile(t, "project_name: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{"missing project", func(c *Config) { c.ProjectName = " " }, "project_name"},
		{"zero batch size", func(c *Config) { c.Batch.Size = 0 }, "batch.size"},
		{"error rate above one", func(c *Config) { c.Errors.SampleRate = 1.5 }, "errors.sample_rate"},
		{"negative replay rate", func(c *Config) { c.Replay.SampleRate = -0.1 }, "replay.sample_rate"},
		{"unknown exporter", func(c *Config) { c.Exporter.Type = "kafka" }, "exporter.type"},
		{"otlp without endpoint", func(c *Config) { c.Exporter.Type = "otlp" }, "exporter.otlp_endpoint"},
		{"bad compression", func(c *Config) { c.Exporter.Compression = "lz4" }, "exporter.compression"},
		{"sqlite store without path", func(c *Config) { c.Session.Store = StoreSQLite }, "session.store"},
		{"dead letter without path", func(c *Config) { c.Storage.DeadLetter = true }, "storage.dead_letter"},
		{"unknown store", func(c *Config) { c.Session.Store = "redis" }, "session.store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ProjectName = "p"
			tt.mutate(cfg)

			err := cfg.Validate()
			var ce *beaconerrors.ConfigError
			require.True(t, errors.As(err, &ce), "expected ConfigError, got %v", err)
			assert.Equal(t, tt.wantKey, ce.Key)
		})
	}
}

func TestValidateDefaultsWithProject(t *testing.T) {
	cfg := Default()
	cfg.ProjectName = "p"
	assert.NoError(t, cfg.Validate())
}

func TestValidateJoinsProblems(t *testing.T) {
	cfg := Default()
	cfg.Batch.Size = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project_name")
	assert.Contains(t, err.Error(), "batch.size")
}

func TestApplyDefaultsLeavesSampleRates(t *testing.T) {
	cfg := &Config{ProjectName: "p"}
	cfg.ApplyDefaults()

	assert.Equal(t, 100, cfg.Batch.Size)
	assert.Equal(t, StoreFile, cfg.Session.Store)
	assert.Zero(t, cfg.Errors.SampleRate)
	assert.Zero(t, cfg.Replay.SampleRate)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.ProjectName = "saved"
	cfg.Exporter.Compression = "gzip"
	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.ProjectName)
	assert.Equal(t, "gzip", loaded.Exporter.Compression)
	assert.Equal(t, cfg.Batch, loaded.Batch)
}

func TestConfigPathRespectsXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "beacon", "config.yaml"), path)
	assert.DirExists(t, filepath.Join(dir, "beacon"))
}
