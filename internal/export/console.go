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

package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tombee/beacon/pkg/telemetry"
)

// ConsoleConfig configures the console exporter.
type ConsoleConfig struct {
	// Writer is where output goes (default: os.Stdout).
	Writer io.Writer

	// PrettyPrint indents span output.
	PrettyPrint bool
}

// Console writes telemetry as structured lines. It is the fallback when no
// API key is configured.
type Console struct {
	logger *slog.Logger
	spans  *stdouttrace.Exporter

	mu     sync.Mutex
	closed bool
}

// NewConsole creates a console exporter.
func NewConsole(cfg ConsoleConfig) (*Console, error) {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}

	opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	spans, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout span exporter: %w", err)
	}

	return &Console{
		logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})),
		spans:  spans,
	}, nil
}

func (c *Console) ExportLogs(ctx context.Context, batch []telemetry.LogEntry) telemetry.ExportResult {
	for _, e := range batch {
		w := EncodeLog(e)
		attrs := []slog.Attr{
			slog.String("kind", "log"),
			slog.String("lvl", w.Lvl),
			slog.Int64("ts", w.Ts),
		}
		if w.Fl != "" {
			attrs = append(attrs, slog.String("fl", w.Fl), slog.Int("ln", w.Ln))
		}
		if w.Tid != "" {
			attrs = append(attrs, slog.String("tid", w.Tid), slog.String("sid", w.Sid))
		}
		if w.Ext != "" {
			attrs = append(attrs, slog.String("ext", w.Ext), slog.String("exv", w.Exv))
		}
		if len(w.Props) > 0 {
			attrs = append(attrs, slog.Any("props", w.Props))
		}
		c.logger.LogAttrs(ctx, consoleLevel(e.Level), w.Msg, attrs...)
	}
	return telemetry.Succeeded(len(batch))
}

func (c *Console) ExportObjects(ctx context.Context, batch []telemetry.RegisteredObject) telemetry.ExportResult {
	for _, o := range batch {
		c.logger.LogAttrs(ctx, slog.LevelInfo, "object registered",
			slog.String("kind", "object"),
			slog.String("name", o.Name),
			slog.String("id", o.ID),
			slog.Any("fields", telemetry.SanitizeFields(o.Fields)),
		)
	}
	return telemetry.Succeeded(len(batch))
}

func (c *Console) ExportSpans(ctx context.Context, batch []sdktrace.ReadOnlySpan) telemetry.ExportResult {
	if len(batch) == 0 {
		return telemetry.Succeeded(0)
	}
	if err := c.spans.ExportSpans(ctx, batch); err != nil {
		return telemetry.Failed(err)
	}
	return telemetry.Succeeded(len(batch))
}

func (c *Console) ExportEvents(ctx context.Context, batch []telemetry.FrontendEvent) telemetry.ExportResult {
	for _, ev := range batch {
		c.logger.LogAttrs(ctx, slog.LevelInfo, "frontend event",
			slog.String("kind", "event"),
			slog.String("type", string(ev.Type)),
			slog.String("sid", ev.SessionID),
			slog.Any("data", eventData(ev)),
		)
	}
	return telemetry.Succeeded(len(batch))
}

// Shutdown stops the span exporter. Later calls are no-ops.
func (c *Console) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.spans.Shutdown(ctx)
}

func consoleLevel(l telemetry.Level) slog.Level {
	switch l {
	case telemetry.LevelTrace, telemetry.LevelDebug:
		return slog.LevelDebug
	case telemetry.LevelWarn:
		return slog.LevelWarn
	case telemetry.LevelError, telemetry.LevelFatal:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
