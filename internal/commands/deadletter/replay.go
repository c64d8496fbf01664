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
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/beacon/internal/commands/completion"
	"github.com/tombee/beacon/internal/commands/shared"
	"github.com/tombee/beacon/internal/config"
	"github.com/tombee/beacon/internal/export"
	"github.com/tombee/beacon/internal/storage"
	beaconerrors "github.com/tombee/beacon/pkg/errors"
	"github.com/tombee/beacon/pkg/telemetry"
)

// sender posts an encoded body to the ingestion service.
type sender interface {
	Send(ctx context.Context, path string, body json.RawMessage, n int) telemetry.ExportResult
}

// ReplayResult is the JSON output of 'beacon deadletter replay'.
type ReplayResult struct {
	shared.JSONResponse
	Replayed int     `json:"replayed"`
	Failed   int     `json:"failed"`
	Items    int     `json:"items"`
	IDs      []int64 `json:"ids,omitempty"`
}

func newReplayCommand() *cobra.Command {
	var (
		kind  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Resend dead letters to the ingestion service",
		Long: `Resend stored batches oldest first. Each batch that is accepted is
deleted; a batch that fails again is kept for a later attempt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !validKind(kind) {
				return fmt.Errorf("unknown kind %q", kind)
			}

			cfg, store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := shared.RequireAPIKey(cfg); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			s, err := newSender(ctx, cfg)
			if err != nil {
				return err
			}

			result, err := replay(ctx, store, s, storage.DeadLetterFilter{Kind: kind, Limit: limit})
			if err != nil {
				return err
			}

			if shared.GetJSON() {
				if err := shared.EmitJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				cmd.Println(shared.RenderOK(fmt.Sprintf("replayed %d dead letters (%d items)", result.Replayed, result.Items)))
				if result.Failed > 0 {
					cmd.Println(shared.RenderWarn(fmt.Sprintf("%d dead letters failed again and were kept", result.Failed)))
				}
			}

			if result.Failed > 0 {
				return shared.NewTransportError(fmt.Sprintf("%d dead letters could not be delivered", result.Failed), nil)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only replay this kind (logs, objects, spans, events)")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of dead letters to replay")
	_ = cmd.RegisterFlagCompletionFunc("kind", completion.CompleteDeadLetterKinds)

	return cmd
}

func newSender(ctx context.Context, cfg *config.Config) (sender, error) {
	exp, err := export.New(ctx, export.Config{
		Type:        export.TypeHTTP,
		Endpoint:    cfg.Endpoint,
		APIKey:      cfg.APIKey,
		Compression: cfg.Exporter.Compression,
		TLS:         cfg.Exporter.TLS,
		Logger:      shared.Logger(),
	})
	if err != nil {
		return nil, shared.NewConfigError("failed to create exporter", err)
	}
	s, ok := exp.(sender)
	if !ok {
		return nil, fmt.Errorf("exporter %T cannot replay dead letters", exp)
	}
	return s, nil
}

func replay(ctx context.Context, store *storage.SQLiteStore, s sender, filter storage.DeadLetterFilter) (ReplayResult, error) {
	result := ReplayResult{JSONResponse: shared.NewJSONResponse("deadletter replay")}

	letters, err := store.ListDeadLetters(ctx, filter)
	if err != nil {
		return result, err
	}

	logger := shared.Logger()
	for _, dl := range letters {
		path, ok := export.KindPaths[dl.Kind]
		if !ok {
			logger.Warn("skipping dead letter of unknown kind", "id", dl.ID, "kind", dl.Kind)
			result.Failed++
			continue
		}

		res := s.Send(ctx, path, dl.Payload, dl.Items)
		if !res.Success {
			logger.Warn("dead letter replay failed", "id", dl.ID, "kind", dl.Kind, "error", res.Err)
			result.Failed++
			continue
		}

		if err := store.DeleteDeadLetter(ctx, dl.ID); err != nil {
			return result, beaconerrors.Wrap(err, fmt.Sprintf("dead letter %d was delivered but not deleted", dl.ID))
		}
		result.Replayed++
		result.Items += dl.Items
		result.IDs = append(result.IDs, dl.ID)
	}
	return result, nil
}
