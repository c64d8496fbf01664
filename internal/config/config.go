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

// Package config loads beacon client configuration from YAML files and
// BEACON_* environment variables.
//
// Load starts from Default, overlays the file, fills any remaining zero
// values, applies environment overrides and validates. Sample rates are
// never defaulted after the file is read because zero is meaningful: a
// configuration built by hand should start from Default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/beacon/internal/export"
	beaconerrors "github.com/tombee/beacon/pkg/errors"
)

// Config is the complete client configuration.
type Config struct {
	ProjectName string `yaml:"project_name"`
	Environment string `yaml:"environment,omitempty"`
	CommitSHA   string `yaml:"commit_sha,omitempty"`

	// APIKey authenticates against the ingestion service. When empty the
	// client writes to the console instead.
	APIKey   string `yaml:"api_key,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`

	Exporter   ExporterConfig   `yaml:"exporter"`
	Batch      BatchConfig      `yaml:"batch"`
	Errors     ErrorsConfig     `yaml:"errors"`
	Session    SessionConfig    `yaml:"session"`
	Replay     ReplayConfig     `yaml:"replay"`
	Gatekeeper GatekeeperConfig `yaml:"gatekeeper"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// ExporterConfig selects the exporter.
type ExporterConfig struct {
	// Type is http, console, otlp, otlp-http or none.
	Type        string `yaml:"type"`
	Compression string `yaml:"compression,omitempty"`

	OTLPEndpoint string            `yaml:"otlp_endpoint,omitempty"`
	OTLPInsecure bool              `yaml:"otlp_insecure,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty"`

	TLS export.TLSConfig `yaml:"tls,omitempty"`
}

// BatchConfig controls every buffer.
type BatchConfig struct {
	Size            int           `yaml:"size"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	MaxAge          time.Duration `yaml:"max_age"`
	ExportTimeout   time.Duration `yaml:"export_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// DisableTimers runs without background flush loops. Flushes then
	// happen at the size or age threshold, on Flush and at Shutdown.
	DisableTimers bool `yaml:"disable_timers,omitempty"`
}

// ErrorsConfig controls the error tracker.
type ErrorsConfig struct {
	SampleRate   float64       `yaml:"sample_rate"`
	DedupWindow  time.Duration `yaml:"dedup_window"`
	MaxEntries   int           `yaml:"max_entries"`
	MaxPerSecond float64       `yaml:"max_per_second"`

	// CaptureLogs reports slog records at error level and above.
	CaptureLogs bool `yaml:"capture_logs"`
	// CaptureHTTP reports failed requests made through http.DefaultClient.
	CaptureHTTP bool `yaml:"capture_http"`
}

// SessionConfig controls the session manager.
type SessionConfig struct {
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
	MaxLength         time.Duration `yaml:"max_length"`

	// Store is file, sqlite or memory.
	Store string `yaml:"store"`
	// Path overrides the session file location for the file store.
	Path string `yaml:"path,omitempty"`
}

// ReplayConfig controls session recording.
type ReplayConfig struct {
	Enabled     bool    `yaml:"enabled"`
	SampleRate  float64 `yaml:"sample_rate"`
	ChunkSize   int     `yaml:"chunk_size"`
	BlockClass  string  `yaml:"block_class,omitempty"`
	IgnoreClass string  `yaml:"ignore_class,omitempty"`
	MaskClass   string  `yaml:"mask_class,omitempty"`
	MaskAllText bool    `yaml:"mask_all_text,omitempty"`
}

// GatekeeperConfig controls the flag cache.
type GatekeeperConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// StorageConfig enables the local sqlite database.
type StorageConfig struct {
	// Path is the database file. Empty disables local storage.
	Path string `yaml:"path,omitempty"`

	// DeadLetter persists items dropped after failed exports.
	DeadLetter bool `yaml:"dead_letter,omitempty"`

	// Retention is how long dead letters are kept.
	Retention time.Duration `yaml:"retention,omitempty"`
}

// LogConfig configures beacon's own diagnostics.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source,omitempty"`
}

// Session store kinds.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Endpoint: export.DefaultEndpoint,
		Exporter: ExporterConfig{
			Type: export.TypeHTTP,
		},
		Batch: BatchConfig{
			Size:            100,
			FlushInterval:   5 * time.Second,
			MaxAge:          10 * time.Second,
			ExportTimeout:   30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Errors: ErrorsConfig{
			SampleRate:  1.0,
			DedupWindow: 30 * time.Second,
			MaxEntries:  100,
			CaptureLogs: true,
		},
		Session: SessionConfig{
			InactivityTimeout: 30 * time.Minute,
			MaxLength:         4 * time.Hour,
			Store:             StoreFile,
		},
		Replay: ReplayConfig{
			SampleRate: 1.0,
			ChunkSize:  50,
		},
		Gatekeeper: GatekeeperConfig{
			TTL: 60 * time.Second,
		},
		Storage: StorageConfig{
			Retention: 7 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from configPath (optional), applies defaults
// and environment overrides, and validates the result.
func Load(configPath string) (*Config, error) {
	cfg, err := Read(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for tools that only need part of the
// configuration.
func Read(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &beaconerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.ApplyDefaults()
	cfg.loadFromEnv()
	return cfg, nil
}

// ApplyDefaults fills zero values other than sample rates.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.Endpoint == "" {
		c.Endpoint = defaults.Endpoint
	}
	if c.Exporter.Type == "" {
		c.Exporter.Type = defaults.Exporter.Type
	}

	if c.Batch.Size == 0 {
		c.Batch.Size = defaults.Batch.Size
	}
	if c.Batch.FlushInterval == 0 {
		c.Batch.FlushInterval = defaults.Batch.FlushInterval
	}
	if c.Batch.MaxAge == 0 {
		c.Batch.MaxAge = defaults.Batch.MaxAge
	}
	if c.Batch.ExportTimeout == 0 {
		c.Batch.ExportTimeout = defaults.Batch.ExportTimeout
	}
	if c.Batch.ShutdownTimeout == 0 {
		c.Batch.ShutdownTimeout = defaults.Batch.ShutdownTimeout
	}

	if c.Errors.DedupWindow == 0 {
		c.Errors.DedupWindow = defaults.Errors.DedupWindow
	}
	if c.Errors.MaxEntries == 0 {
		c.Errors.MaxEntries = defaults.Errors.MaxEntries
	}

	if c.Session.InactivityTimeout == 0 {
		c.Session.InactivityTimeout = defaults.Session.InactivityTimeout
	}
	if c.Session.MaxLength == 0 {
		c.Session.MaxLength = defaults.Session.MaxLength
	}
	if c.Session.Store == "" {
		c.Session.Store = defaults.Session.Store
	}

	if c.Replay.ChunkSize == 0 {
		c.Replay.ChunkSize = defaults.Replay.ChunkSize
	}
	if c.Gatekeeper.TTL == 0 {
		c.Gatekeeper.TTL = defaults.Gatekeeper.TTL
	}
	if c.Storage.Retention == 0 {
		c.Storage.Retention = defaults.Storage.Retention
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv applies BEACON_* overrides. Unparseable values are ignored.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("BEACON_API_KEY"); val != "" {
		c.APIKey = val
	}
	if val := os.Getenv("BEACON_ENDPOINT"); val != "" {
		c.Endpoint = val
	}
	if val := os.Getenv("BEACON_PROJECT"); val != "" {
		c.ProjectName = val
	}
	if val := os.Getenv("BEACON_ENVIRONMENT"); val != "" {
		c.Environment = val
	}
	if val := os.Getenv("BEACON_COMMIT_SHA"); val != "" {
		c.CommitSHA = val
	}
	if val := os.Getenv("BEACON_EXPORTER"); val != "" {
		c.Exporter.Type = strings.ToLower(val)
	}

	if val := os.Getenv("BEACON_BATCH_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Batch.Size = n
		}
	}
	if val := os.Getenv("BEACON_FLUSH_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Batch.FlushInterval = d
		}
	}
	if val := os.Getenv("BEACON_ERROR_SAMPLE_RATE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Errors.SampleRate = f
		}
	}
	if val := os.Getenv("BEACON_REPLAY_SAMPLE_RATE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Replay.SampleRate = f
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
}

// Validate checks the configuration. Every problem is reported as a
// *errors.ConfigError; multiple problems are joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(key, reason string) {
		errs = append(errs, &beaconerrors.ConfigError{Key: key, Reason: reason})
	}

	if strings.TrimSpace(c.ProjectName) == "" {
		add("project_name", "is required")
	}
	if c.Batch.Size <= 0 {
		add("batch.size", fmt.Sprintf("must be positive, got %d", c.Batch.Size))
	}
	if c.Batch.MaxAge < 0 {
		add("batch.max_age", fmt.Sprintf("must not be negative, got %v", c.Batch.MaxAge))
	}
	if c.Batch.ExportTimeout <= 0 {
		add("batch.export_timeout", fmt.Sprintf("must be positive, got %v", c.Batch.ExportTimeout))
	}
	if c.Errors.SampleRate < 0 || c.Errors.SampleRate > 1 {
		add("errors.sample_rate", fmt.Sprintf("must be between 0 and 1, got %v", c.Errors.SampleRate))
	}
	if c.Errors.MaxPerSecond < 0 {
		add("errors.max_per_second", fmt.Sprintf("must not be negative, got %v", c.Errors.MaxPerSecond))
	}
	if c.Replay.SampleRate < 0 || c.Replay.SampleRate > 1 {
		add("replay.sample_rate", fmt.Sprintf("must be between 0 and 1, got %v", c.Replay.SampleRate))
	}
	if c.Session.InactivityTimeout <= 0 {
		add("session.inactivity_timeout", fmt.Sprintf("must be positive, got %v", c.Session.InactivityTimeout))
	}
	if c.Session.MaxLength <= 0 {
		add("session.max_length", fmt.Sprintf("must be positive, got %v", c.Session.MaxLength))
	}

	switch c.Session.Store {
	case StoreFile, StoreMemory:
	case StoreSQLite:
		if c.Storage.Path == "" {
			add("session.store", "sqlite requires storage.path")
		}
	default:
		add("session.store", fmt.Sprintf("must be one of [file, sqlite, memory], got %q", c.Session.Store))
	}

	if c.Storage.DeadLetter && c.Storage.Path == "" {
		add("storage.dead_letter", "requires storage.path")
	}

	switch c.Exporter.Type {
	case export.TypeHTTP, export.TypeConsole, export.TypeNone:
	case export.TypeOTLP, export.TypeOTLPHTTP:
		if c.Exporter.OTLPEndpoint == "" {
			add("exporter.otlp_endpoint", "is required for "+c.Exporter.Type)
		}
	default:
		add("exporter.type", fmt.Sprintf("must be one of [http, console, otlp, otlp-http, none], got %q", c.Exporter.Type))
	}

	switch c.Exporter.Compression {
	case export.CompressionNone, export.CompressionGzip, export.CompressionZstd:
	default:
		add("exporter.compression", fmt.Sprintf("must be one of [gzip, zstd] or empty, got %q", c.Exporter.Compression))
	}

	return errors.Join(errs...)
}

// Save writes cfg to path as YAML with owner-only permissions.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
