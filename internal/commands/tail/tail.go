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

// Package tail implements 'beacon tail', which forwards a line-oriented log
// stream to the ingestion service.
package tail

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/beacon/internal/commands/completion"
	"github.com/tombee/beacon/internal/commands/shared"
	beaconlog "github.com/tombee/beacon/internal/log"
	"github.com/tombee/beacon/internal/metrics"
	"github.com/tombee/beacon/pkg/telemetry"
	"github.com/tombee/beacon/sdk"
)

// maxLineSize bounds a single input line.
const maxLineSize = 1 << 20

type options struct {
	level       string
	source      string
	passthrough bool
	follow      bool
	metricsAddr string
}

// NewCommand creates the tail command
func NewCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "tail [file]",
		Short: "Forward log lines from stdin or a file",
		Long: `Read log lines and forward each one as a beacon log entry.

JSON lines are decoded: "msg" or "message" becomes the message, "level" or
"lvl" the level and every other field a property. Any other line is sent
verbatim at --level.

Reads stdin when no file is given, until EOF or interrupt. With --follow
the file is read to the end and then watched for new lines until it is
removed or the command is interrupted.`,
		Example: `  ./server 2>&1 | beacon tail --passthrough
  beacon tail --follow /var/log/app.ndjson --metrics-addr :9464`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := telemetry.Level(strings.ToLower(opts.level))
			if !level.Valid() {
				return fmt.Errorf("unknown level %q", opts.level)
			}

			if opts.follow && len(args) == 0 {
				return fmt.Errorf("--follow requires a file")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			in := cmd.InOrStdin()
			switch {
			case opts.follow:
				fr, err := newFollowReader(ctx, args[0])
				if err != nil {
					return err
				}
				defer fr.Close()
				in = fr
			case len(args) == 1:
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()
				in = f
			}

			return runTail(ctx, cmd, in, opts, level)
		},
	}

	cmd.Flags().StringVarP(&opts.level, "level", "l", string(telemetry.LevelInfo), "Level for lines without one")
	cmd.Flags().StringVar(&opts.source, "source", "tail", "Source recorded on every entry")
	cmd.Flags().BoolVar(&opts.passthrough, "passthrough", false, "Copy every input line to stdout")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Keep reading the file as it grows")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve pipeline metrics in Prometheus format on this address")
	_ = cmd.RegisterFlagCompletionFunc("level", completion.CompleteLevels)

	return cmd
}

func runTail(ctx context.Context, cmd *cobra.Command, in io.Reader, opts *options, level telemetry.Level) error {
	cfg, err := shared.LoadConfig(true)
	if err != nil {
		return err
	}

	logger := shared.Logger()
	var clientOpts []sdk.Option

	if opts.metricsAddr != "" {
		version, _, _ := shared.GetVersion()
		provider, err := metrics.NewPrometheusProvider("beacon-tail", version)
		if err != nil {
			return err
		}
		defer provider.Shutdown(context.Background())
		clientOpts = append(clientOpts, sdk.WithMeterProvider(provider))

		ln, err := net.Listen("tcp", opts.metricsAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", opts.metricsAddr, err)
		}
		srv := &http.Server{
			Handler:           metricsHandler(provider, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", beaconlog.Error(err))
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", ln.Addr().String())
	}

	client, err := shared.NewClient(cfg, clientOpts...)
	if err != nil {
		return err
	}

	forwarded, err := forward(ctx, client, in, cmd.OutOrStdout(), opts, level)
	shutdownErr := client.Shutdown(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	if shutdownErr != nil {
		return shared.NewTransportError("failed to deliver logs", shutdownErr)
	}

	if !shared.GetQuiet() && !opts.passthrough {
		fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderOK(fmt.Sprintf("forwarded %d lines", forwarded)))
	}
	return nil
}

// forward reads lines from in until EOF or ctx is done and logs each one
// through client.
func forward(ctx context.Context, client *sdk.Client, in io.Reader, out io.Writer, opts *options, level telemetry.Level) (int, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	forwarded := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Text()
		if opts.passthrough {
			fmt.Fprintln(out, line)
		}

		msg, lvl, props := ParseLine(line, level)
		if msg == "" {
			continue
		}
		if props == nil {
			props = map[string]any{}
		}
		props["source"] = opts.source
		client.Log(ctx, lvl, msg, props)
		forwarded++
	}
	if err := scanner.Err(); err != nil {
		return forwarded, fmt.Errorf("failed to read input: %w", err)
	}
	return forwarded, nil
}

func metricsHandler(provider *metrics.PrometheusProvider, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", provider.Handler())
	return beaconlog.HTTPMiddleware(logger, mux)
}
