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

// Package deadletter implements 'beacon deadletter', which inspects and
// replays batches the client could not deliver.
package deadletter

import (
	"github.com/spf13/cobra"

	"github.com/tombee/beacon/internal/commands/shared"
	"github.com/tombee/beacon/internal/config"
	"github.com/tombee/beacon/internal/storage"
)

// NewCommand creates the deadletter command with subcommands
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletter",
		Aliases: []string{"dlq"},
		Short:   "Manage undelivered telemetry",
		Long: `Manage batches that were dropped after repeated export failures.

Dead letters are kept in the database named by storage.path when
storage.dead_letter is enabled.`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newReplayCommand())
	cmd.AddCommand(newPurgeCommand())

	return cmd
}

// openStore loads the configuration and opens its database.
func openStore() (*config.Config, *storage.SQLiteStore, error) {
	cfg, err := shared.LoadConfig(false)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.Path == "" {
		return nil, nil, shared.NewConfigError("storage.path is not set", nil)
	}

	store, err := storage.New(storage.Config{Path: cfg.Storage.Path})
	if err != nil {
		return nil, nil, shared.NewConfigError("failed to open storage", err)
	}
	return cfg, store, nil
}

func validKind(kind string) bool {
	switch kind {
	case "", storage.KindLogs, storage.KindObjects, storage.KindSpans, storage.KindEvents:
		return true
	}
	return false
}
