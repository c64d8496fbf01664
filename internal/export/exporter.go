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

// Package export contains the exporters that ship telemetry batches out of
// the process. Exporters are the only components that perform network I/O.
// Every call reports its outcome as a telemetry.ExportResult; none panic or
// return an error to the buffers.
package export

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tombee/beacon/pkg/telemetry"
)

// Exporter ships batches of each telemetry kind.
type Exporter interface {
	ExportLogs(ctx context.Context, batch []telemetry.LogEntry) telemetry.ExportResult
	ExportObjects(ctx context.Context, batch []telemetry.RegisteredObject) telemetry.ExportResult
	ExportSpans(ctx context.Context, batch []sdktrace.ReadOnlySpan) telemetry.ExportResult
	ExportEvents(ctx context.Context, batch []telemetry.FrontendEvent) telemetry.ExportResult
	Shutdown(ctx context.Context) error
}

// GatekeeperChecker is implemented by exporters that can look up remote flags.
type GatekeeperChecker interface {
	CheckGatekeeper(ctx context.Context, key string) (bool, error)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ExportLogs(_ context.Context, b []telemetry.LogEntry) telemetry.ExportResult {
	return telemetry.Succeeded(len(b))
}

func (Nop) ExportObjects(_ context.Context, b []telemetry.RegisteredObject) telemetry.ExportResult {
	return telemetry.Succeeded(len(b))
}

func (Nop) ExportSpans(_ context.Context, b []sdktrace.ReadOnlySpan) telemetry.ExportResult {
	return telemetry.Succeeded(len(b))
}

func (Nop) ExportEvents(_ context.Context, b []telemetry.FrontendEvent) telemetry.ExportResult {
	return telemetry.Succeeded(len(b))
}

func (Nop) Shutdown(context.Context) error { return nil }

var (
	_ Exporter          = Nop{}
	_ Exporter          = (*HTTP)(nil)
	_ GatekeeperChecker = (*HTTP)(nil)
	_ Exporter          = (*Console)(nil)
	_ Exporter          = (*Mock)(nil)
	_ GatekeeperChecker = (*Mock)(nil)
	_ Exporter          = (*OTLP)(nil)
)
