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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/beacon/internal/commands/shared"
	"github.com/tombee/beacon/internal/config"
	"github.com/tombee/beacon/internal/export"
)

// ValidationResult represents the result of config validation.
type ValidationResult struct {
	shared.JSONResponse
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the 'config validate' subcommand.
func NewValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Long: `Validate the effective configuration.

Errors make the client refuse to start. Warnings flag settings that work
but are probably unintended. With --strict, warnings are treated as errors.`,
		Example: `  beacon config validate
  beacon config validate --strict --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig(false)
			if err != nil {
				return err
			}

			result := validate(cfg, strict)

			if shared.GetJSON() {
				if err := shared.EmitJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				for _, e := range result.Errors {
					cmd.Println(shared.RenderError(e))
				}
				for _, w := range result.Warnings {
					cmd.Println(shared.RenderWarn(w))
				}
				if result.Valid {
					cmd.Println(shared.RenderOK("configuration is valid"))
				}
			}

			if !result.Valid {
				return &shared.ExitError{
					Code:    shared.ExitInvalidConfig,
					Message: fmt.Sprintf("configuration has %d problems", len(result.Errors)),
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	return cmd
}

func validate(cfg *config.Config, strict bool) ValidationResult {
	result := ValidationResult{JSONResponse: shared.NewJSONResponse("config validate")}

	if err := cfg.Validate(); err != nil {
		result.Errors = append(result.Errors, splitJoined(err)...)
	}

	if cfg.APIKey == "" && cfg.Exporter.Type == export.TypeHTTP {
		result.Warnings = append(result.Warnings, "api_key is not set: telemetry will be written to stdout")
	}
	if cfg.Errors.SampleRate == 0 {
		result.Warnings = append(result.Warnings, "errors.sample_rate is 0: no errors will be reported")
	}
	if cfg.Storage.Path != "" && !cfg.Storage.DeadLetter && cfg.Session.Store != config.StoreSQLite {
		result.Warnings = append(result.Warnings, "storage.path is set but nothing uses it")
	}
	if cfg.Exporter.Type == export.TypeNone {
		result.Warnings = append(result.Warnings, "exporter.type is none: telemetry is discarded")
	}

	if strict {
		result.Errors = append(result.Errors, result.Warnings...)
		result.Warnings = nil
	}
	result.Valid = len(result.Errors) == 0
	result.Success = result.Valid
	return result
}

// splitJoined flattens an errors.Join result into one message per error.
func splitJoined(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
