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

package deadletter

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/beacon/internal/commands/shared"
)

// PurgeResult is the JSON output of 'beacon deadletter purge'.
type PurgeResult struct {
	shared.JSONResponse
	Deleted int64 `json:"deleted"`
}

func newPurgeCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete dead letters",
		Example: `  beacon deadletter purge
  beacon deadletter purge --older-than 72h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}

			_, store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			// Rows created in the current nanosecond are included.
			cutoff := time.Now().Add(-olderThan).Add(time.Nanosecond)
			deleted, err := store.DeleteDeadLettersOlderThan(cmd.Context(), cutoff)
			if err != nil {
				return err
			}

			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), PurgeResult{
					JSONResponse: shared.NewJSONResponse("deadletter purge"),
					Deleted:      deleted,
				})
			}
			cmd.Println(shared.RenderOK(fmt.Sprintf("deleted %d dead letters", deleted)))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only delete dead letters older than this")

	return cmd
}
