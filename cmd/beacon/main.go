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

package main

import (
	"context"

	"github.com/tombee/beacon/internal/cli"
	"github.com/tombee/beacon/internal/commands/completion"
	"github.com/tombee/beacon/internal/commands/config"
	"github.com/tombee/beacon/internal/commands/deadletter"
	flagcmd "github.com/tombee/beacon/internal/commands/flag"
	"github.com/tombee/beacon/internal/commands/send"
	"github.com/tombee/beacon/internal/commands/tail"
	versioncmd "github.com/tombee/beacon/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Telemetry commands
	rootCmd.AddCommand(send.NewCommand())
	rootCmd.AddCommand(tail.NewCommand())
	rootCmd.AddCommand(flagcmd.NewCommand())

	// Local storage
	rootCmd.AddCommand(deadletter.NewCommand())

	// Configuration
	rootCmd.AddCommand(config.NewConfigCommand())

	rootCmd.AddCommand(completion.NewCommand())
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	// Help with JSON support
	rootCmd.SetHelpCommand(cli.NewHelpCommand(rootCmd))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		cli.HandleExitError(err)
	}
}
