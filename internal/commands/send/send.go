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

// Package send implements 'beacon send', which pushes a single log, event
// or error through the full client pipeline.
package send

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/spf13/cobra"

	"github.com/tombee/beacon/internal/commands/completion"
	"github.com/tombee/beacon/internal/commands/shared"
	"github.com/tombee/beacon/pkg/telemetry"
	"github.com/tombee/beacon/sdk"
)

type options struct {
	level string
	props map[string]string
}

// NewCommand creates the send command with subcommands
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a log, event or error",
		Long: `Send one item through the beacon pipeline and wait for it to be exported.

Without an API key the item is written to stdout instead.`,
	}

	cmd.AddCommand(newLogCommand())
	cmd.AddCommand(newEventCommand())
	cmd.AddCommand(newErrorCommand())

	return cmd
}

func newLogCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:     "log <message>",
		Short:   "Send a log entry",
		Example: `  beacon send log "deploy finished" --level info --prop version=1.4.2`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := telemetry.Level(opts.level)
			if !level.Valid() {
				return fmt.Errorf("unknown level %q", opts.level)
			}
			return run(cmd, "log", func(ctx context.Context, c *sdk.Client) {
				c.Log(ctx, level, args[0], toProps(opts.props))
			})
		},
	}
	cmd.Flags().StringVarP(&opts.level, "level", "l", string(telemetry.LevelInfo), "Log level (trace, debug, info, warn, error, fatal)")
	cmd.Flags().StringToStringVarP(&opts.props, "prop", "p", nil, "Property as key=value (repeatable)")
	_ = cmd.RegisterFlagCompletionFunc("level", completion.CompleteLevels)
	return cmd
}

func newEventCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "event <name>",
		Short: "Send a custom event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, "event", func(_ context.Context, c *sdk.Client) {
				c.Track(args[0], toProps(opts.props))
			})
		},
	}
	cmd.Flags().StringToStringVarP(&opts.props, "prop", "p", nil, "Property as key=value (repeatable)")
	return cmd
}

func newErrorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "error <message>",
		Short: "Report an error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, "error", func(_ context.Context, c *sdk.Client) {
				c.CaptureError(errors.New(args[0]))
			})
		},
	}
}

func run(cmd *cobra.Command, kind string, fn func(context.Context, *sdk.Client)) error {
	cfg, err := shared.LoadConfig(true)
	if err != nil {
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
	fn(ctx, client)

	if err := client.Shutdown(ctx); err != nil {
		return shared.NewTransportError("failed to send "+kind, err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), shared.NewJSONResponse("send "+kind))
	}
	if !shared.GetQuiet() {
		cmd.Println(shared.RenderOK("sent " + kind))
	}
	return nil
}

func toProps(in map[string]string) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range maps.All(in) {
		out[k] = v
	}
	return out
}
