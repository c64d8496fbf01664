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
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/beacon/internal/commands/completion"
	"github.com/tombee/beacon/internal/commands/shared"
	"github.com/tombee/beacon/internal/storage"
)

// ListResult is the JSON output of 'beacon deadletter list'.
type ListResult struct {
	shared.JSONResponse
	DeadLetters []Entry `json:"dead_letters"`
}

// Entry describes one dead letter without its payload.
type Entry struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Items     int       `json:"items"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Bytes     int       `json:"bytes"`
}

func newListCommand() *cobra.Command {
	var (
		kind  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead letters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !validKind(kind) {
				return fmt.Errorf("unknown kind %q", kind)
			}

			_, store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			letters, err := store.ListDeadLetters(cmd.Context(), storage.DeadLetterFilter{Kind: kind, Limit: limit})
			if err != nil {
				return err
			}

			entries := make([]Entry, 0, len(letters))
			for _, dl := range letters {
				entries = append(entries, Entry{
					ID:        dl.ID,
					Kind:      dl.Kind,
					Items:     dl.Items,
					Reason:    dl.Reason,
					CreatedAt: dl.CreatedAt,
					Bytes:     len(dl.Payload),
				})
			}

			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), ListResult{
					JSONResponse: shared.NewJSONResponse("deadletter list"),
					DeadLetters:  entries,
				})
			}

			if len(entries) == 0 {
				cmd.Println("No dead letters.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tITEMS\tBYTES\tCREATED\tREASON")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%s\n",
					e.ID, e.Kind, e.Items, e.Bytes,
					e.CreatedAt.Local().Format(time.DateTime), e.Reason)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only list this kind (logs, objects, spans, events)")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of dead letters to list")
	_ = cmd.RegisterFlagCompletionFunc("kind", completion.CompleteDeadLetterKinds)

	return cmd
}
