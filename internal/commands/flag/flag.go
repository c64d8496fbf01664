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

// Package flag implements 'beacon flag', which evaluates gatekeeper flags.
package flag

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/beacon/internal/commands/shared"
)

// FlagResult is the JSON output of 'beacon flag'.
type FlagResult struct {
	shared.JSONResponse
	Flags map[string]bool `json:"flags"`
}

// NewCommand creates the flag command
func NewCommand() *cobra.Command {
	var exitCode bool

	cmd := &cobra.Command{
		Use:   "flag <key> [key...]",
		Short: "Check gatekeeper flags",
		Long: `Check one or more gatekeeper flags against the ingestion service.

A flag that cannot be fetched reports as disabled.`,
		Example: `  beacon flag new-checkout
  beacon flag new-checkout --exit-code && ./deploy-canary.sh`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlag(cmd, args, exitCode)
		},
	}

	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Exit with status 1 if any flag is disabled")

	return cmd
}

func runFlag(cmd *cobra.Command, keys []string, exitCode bool) error {
	cfg, err := shared.LoadConfig(true)
	if err != nil {
		return err
	}
	if err := shared.RequireAPIKey(cfg); err != nil {
		return err
	}
	cfg.Batch.DisableTimers = true

	client, err := shared.NewClient(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	defer client.Shutdown(context.WithoutCancel(ctx))

	results := make(map[string]bool, len(keys))
	allEnabled := true
	for _, key := range keys {
		enabled := client.CheckGatekeeper(ctx, key)
		results[key] = enabled
		allEnabled = allEnabled && enabled
	}

	if shared.GetJSON() {
		if err := shared.EmitJSON(cmd.OutOrStdout(), FlagResult{
			JSONResponse: shared.NewJSONResponse("flag"),
			Flags:        results,
		}); err != nil {
			return err
		}
	} else {
		for _, key := range keys {
			label := "OFF"
			if results[key] {
				label = "ON"
			}
			cmd.Printf("%s %s\n", shared.RenderStatus(results[key], label), key)
		}
	}

	if exitCode && !allEnabled {
		return &shared.ExitError{Code: shared.ExitFailed, Message: fmt.Sprintf("%d of %d flags disabled", countDisabled(results), len(keys))}
	}
	return nil
}

func countDisabled(results map[string]bool) int {
	n := 0
	for _, enabled := range results {
		if !enabled {
			n++
		}
	}
	return n
}
