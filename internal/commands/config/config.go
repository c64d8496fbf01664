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

// Package config implements 'beacon config'.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/beacon/internal/commands/shared"
	"github.com/tombee/beacon/internal/config"
	beaconlog "github.com/tombee/beacon/internal/log"
)

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage configuration",
		Long: `View and manage beacon configuration.

Subcommands:
  show     - Display the effective configuration
  path     - Show config file location
  init     - Write a default config file
  validate - Check the effective configuration`,
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigPathCommand())
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(NewValidateCommand())

	// If no subcommand provided, default to 'show'
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runConfigShow(cmd, args)
	}

	return cmd
}

// newConfigShowCommand creates the 'config show' subcommand
func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the configuration after defaults and BEACON_* environment
overrides are applied.

The API key is masked. Use --json for machine-readable output.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	}
}

// newConfigPathCommand creates the 'config path' subcommand
func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			cmd.Println(path)
			return nil
		},
	}
}

// newConfigInitCommand creates the 'config init' subcommand
func newConfigInitCommand() *cobra.Command {
	var (
		project string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Example: `  beacon config init --project checkout
  beacon --config ./beacon.yaml config init --project checkout --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to check %s: %w", path, err)
			}

			cfg := config.Default()
			cfg.ProjectName = project
			if err := config.Save(cfg, path); err != nil {
				return err
			}

			if !shared.GetQuiet() {
				cmd.Println(shared.RenderOK("wrote " + path))
				if project == "" {
					cmd.Println(shared.RenderWarn("set project_name before sending telemetry"))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project name to write")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return cmd
}

// runConfigShow displays the effective configuration
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := shared.LoadConfig(false)
	if err != nil {
		return err
	}

	masked := *cfg
	if masked.APIKey != "" {
		masked.APIKey = beaconlog.SanitizeAPIKey(masked.APIKey)
	}

	if shared.GetJSON() {
		return outputConfigJSON(cmd.OutOrStdout(), &masked)
	}

	source := shared.GetConfigPath()
	if source == "" {
		if p, err := config.ConfigPath(); err == nil {
			if _, err := os.Stat(p); err == nil {
				source = p
			}
		}
	}
	if source == "" {
		source = "(defaults)"
	}
	return outputConfigYAML(cmd.OutOrStdout(), source, &masked)
}

// configPath returns --config or the default location.
func configPath() (string, error) {
	if p := shared.GetConfigPath(); p != "" {
		return p, nil
	}
	p, err := config.ConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to determine config path: %w", err)
	}
	return p, nil
}

// outputConfigJSON outputs config in JSON format using its YAML field names
func outputConfigJSON(w io.Writer, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	var fields map[string]any
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return shared.EmitJSON(w, fields)
}

// outputConfigYAML outputs config in YAML format
func outputConfigYAML(w io.Writer, source string, cfg *config.Config) error {
	fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("Configuration:"), source)
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return encoder.Close()
}
