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

package sdk

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/beacon/internal/caller"
	beaconlog "github.com/tombee/beacon/internal/log"
	beaconerrors "github.com/tombee/beacon/pkg/errors"
	"github.com/tombee/beacon/pkg/telemetry"
)

// Log enqueues a log entry. The call site, the ambient trace ids and the
// ambient extra keys are attached; props take precedence over ambient keys.
// Entries with an empty message or an unknown level are dropped.
func (c *Client) Log(ctx context.Context, level telemetry.Level, msg string, props map[string]any) {
	defer c.guard("log")
	c.enqueueLog(ctx, telemetry.LogEntry{
		Message:    msg,
		Level:      level,
		Properties: props,
	}, caller.Resolve(1))
}

// LogError enqueues an error-level entry carrying err as its exception.
func (c *Client) LogError(ctx context.Context, err error, msg string, props map[string]any) {
	defer c.guard("log")
	entry := telemetry.LogEntry{
		Message:    msg,
		Level:      telemetry.LevelError,
		Properties: props,
	}
	if err != nil {
		entry.Exception = &telemetry.Exception{
			Name:    fmt.Sprintf("%T", err),
			Message: err.Error(),
			Stack:   caller.Stack(1),
		}
		if entry.Message == "" {
			entry.Message = err.Error()
		}
	}
	c.enqueueLog(ctx, entry, caller.Resolve(1))
}

func (c *Client) enqueueLog(ctx context.Context, entry telemetry.LogEntry, site caller.Info) {
	if c.closed.Load() {
		return
	}
	if strings.TrimSpace(entry.Message) == "" {
		c.reject(&beaconerrors.ValidationError{Field: "message", Message: "log message is empty"})
		return
	}
	if !entry.Level.Valid() {
		c.reject(&beaconerrors.ValidationError{Field: "level", Message: fmt.Sprintf("unknown level %q", entry.Level)})
		return
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = c.now()
	}
	if entry.File == "" {
		entry.File, entry.Line, entry.Function = site.File, site.Line, site.Function
	}

	traceID, spanID, extra := c.traceFields(ctx)
	if entry.TraceID == "" {
		entry.TraceID = traceID
	}
	if entry.SpanID == "" {
		entry.SpanID = spanID
	}
	if len(extra) > 0 || len(entry.Properties) > 0 {
		props := make(map[string]any, len(extra)+len(entry.Properties))
		maps.Copy(props, extra)
		maps.Copy(props, entry.Properties)
		entry.Properties = props
	}
	entry.Resource = c.resource

	c.logs.Add(entry)
}

// traceFields returns the ambient trace ids and extra keys, falling back to
// the OpenTelemetry span in ctx when no ambient ids are set.
func (c *Client) traceFields(ctx context.Context) (traceID, spanID string, extra map[string]any) {
	if tc, ok := c.ambient.Current(ctx); ok {
		traceID, spanID, extra = tc.TraceID, tc.SpanID, tc.Extra
	}
	if traceID == "" && ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			traceID = sc.TraceID().String()
			if spanID == "" {
				spanID = sc.SpanID().String()
			}
		}
	}
	return traceID, spanID, extra
}

// Handler returns a slog.Handler that writes records into the client's log
// buffer. opts may be nil; only Level is used (default: info).
func (c *Client) Handler(opts *slog.HandlerOptions) slog.Handler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &handler{client: c, level: level}
}

type handler struct {
	client *Client
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level() && !h.client.closed.Load()
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	defer h.client.guard("slog")

	entry := telemetry.LogEntry{
		Message:   r.Message,
		Level:     beaconlog.ToTelemetry(r.Level),
		Timestamp: r.Time,
		Source:    "slog",
	}

	props := make(map[string]any, len(h.attrs)+r.NumAttrs())
	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		flatten(props, "", a, &entry)
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(props, prefix, a, &entry)
		return true
	})
	if len(props) > 0 {
		entry.Properties = props
	}

	h.client.enqueueLog(ctx, entry, caller.FromPC(r.PC))
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	prefix := strings.Join(h.groups, ".")
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// flatten writes a into props under dotted keys. An error value under the
// key "error" becomes the entry's exception.
func flatten(props map[string]any, prefix string, a slog.Attr, entry *telemetry.LogEntry) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			flatten(props, key, ga, entry)
		}
		return
	}

	if err, ok := a.Value.Any().(error); ok && a.Key == "error" && entry.Exception == nil {
		entry.Exception = &telemetry.Exception{Name: fmt.Sprintf("%T", err), Message: err.Error()}
		return
	}
	props[key] = attrValue(a.Value)
}

func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return x.Error()
		case fmt.Stringer:
			return x.String()
		}
		return v.Any()
	default:
		return v.Any()
	}
}
