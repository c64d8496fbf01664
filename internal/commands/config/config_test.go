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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/tombee/beacon/internal/commands/shared"
	"github.com/tombee/beacon/internal/config"
)

// withConfig writes content to a temp config file and points --config at it.
// Empty content leaves the file absent.
func withConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("BEACON_API_KEY", "")
	t.Setenv("BEACON_PROJECT", "")

	configPath := filepath.Join(tmpDir, "config.yaml")
	if content != "" {
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("Failed to write test config: %v", err)
		}
	}

	shared.SetConfigPathForTest(configPath)
	shared.SetJSONForTest(false)
	t.Cleanup(func() {
		shared.SetConfigPathForTest("")
		shared.SetJSONForTest(false)
	})
	return configPath
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigShowCommand(t *testing.T) {
	tests := []struct {
		name        string
		setupConfig string
		wantErr     bool
		wantContain []string
		wantAbsent  []string
	}{
		{
			name:        "no config file",
			setupConfig: "",
			wantErr:     true,
		},
		{
			name:        "valid config",
			setupConfig: "project_name: checkout\n",
			wantContain: []string{"project_name: checkout", "flush_interval: 5s"},
		},
		{
			name:        "config with API key",
			setupConfig: "project_name: checkout\napi_key: bk_live_1234567890abcdef\n",
			wantContain: []string{"...cdef"},
			wantAbsent:  []string{"bk_live_1234567890abcdef"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withConfig(t, tt.setupConfig)

			out, err := run(t, newConfigShowCommand())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			for _, absent := range tt.wantAbsent {
				if strings.Contains(out, absent) {
					t.Errorf("output should not contain %q:\n%s", absent, out)
				}
			}
		})
	}
}

func TestConfigShowJSON(t *testing.T) {
	withConfig(t, "project_name: checkout\nbatch:\n  size: 25\n")
	shared.SetJSONForTest(true)

	out, err := run(t, newConfigShowCommand())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(out), &fields); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if fields["project_name"] != "checkout" {
		t.Errorf("project_name = %v, want checkout", fields["project_name"])
	}
	batch, ok := fields["batch"].(map[string]any)
	if !ok {
		t.Fatalf("batch missing from output: %v", fields)
	}
	if batch["size"] != float64(25) {
		t.Errorf("batch.size = %v, want 25", batch["size"])
	}
}

func TestConfigShowAppliesEnvironment(t *testing.T) {
	withConfig(t, "project_name: checkout\n")
	t.Setenv("BEACON_PROJECT", "from-env")

	out, err := run(t, newConfigShowCommand())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "project_name: from-env") {
		t.Errorf("environment override not applied:\n%s", out)
	}
}

func TestConfigPathCommand(t *testing.T) {
	path := withConfig(t, "")

	out, err := run(t, newConfigPathCommand())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if strings.TrimSpace(out) != path {
		t.Errorf("path = %q, want %q", strings.TrimSpace(out), path)
	}
}

func TestConfigInitCommand(t *testing.T) {
	path := withConfig(t, "")

	if _, err := run(t, newConfigInitCommand(), "--project", "checkout"); err != nil {
		t.Fatalf("init error = %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.ProjectName != "checkout" {
		t.Errorf("ProjectName = %q, want checkout", cfg.ProjectName)
	}
	if cfg.Batch.Size != config.Default().Batch.Size {
		t.Errorf("Batch.Size = %d, want default", cfg.Batch.Size)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions = %v, want 0600", info.Mode().Perm())
	}

	if _, err := run(t, newConfigInitCommand(), "--project", "other"); err == nil {
		t.Error("init over an existing file should fail without --force")
	}
	if _, err := run(t, newConfigInitCommand(), "--project", "other", "--force"); err != nil {
		t.Errorf("init --force error = %v", err)
	}
}

func TestConfigValidateCommand(t *testing.T) {
	tests := []struct {
		name         string
		setupConfig  string
		args         []string
		wantErr      bool
		wantErrors   int
		wantWarnings int
	}{
		{
			name:        "valid with api key",
			setupConfig: "project_name: checkout\napi_key: bk_live_123456\n",
		},
		{
			name:         "missing api key warns",
			setupConfig:  "project_name: checkout\n",
			wantWarnings: 1,
		},
		{
			name:        "strict turns warnings into errors",
			setupConfig: "project_name: checkout\n",
			args:        []string{"--strict"},
			wantErr:     true,
			wantErrors:  1,
		},
		{
			name:         "every problem is reported",
			setupConfig:  "api_key: bk_live_123456\nerrors:\n  sample_rate: 2\nsession:\n  store: redis\n",
			wantErr:      true,
			wantErrors:   3,
			wantWarnings: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withConfig(t, tt.setupConfig)
			shared.SetJSONForTest(true)

			out, err := run(t, NewValidateCommand(), tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && shared.ExitCode(err) != shared.ExitInvalidConfig {
				t.Errorf("exit code = %d, want %d", shared.ExitCode(err), shared.ExitInvalidConfig)
			}

			var result ValidationResult
			if err := json.Unmarshal([]byte(out), &result); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, out)
			}
			if result.Valid == tt.wantErr {
				t.Errorf("Valid = %v, want %v", result.Valid, !tt.wantErr)
			}
			if len(result.Errors) != tt.wantErrors {
				t.Errorf("Errors = %v, want %d", result.Errors, tt.wantErrors)
			}
			if len(result.Warnings) != tt.wantWarnings {
				t.Errorf("Warnings = %v, want %d", result.Warnings, tt.wantWarnings)
			}
		})
	}
}
