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
	"errors"
	"slices"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tombee/beacon/pkg/telemetry"
)

// ErrMockFailure is returned by Mock when a failure is scheduled.
var ErrMockFailure = errors.New("mock export failure")

// Mock records every batch it receives. It is safe for concurrent use.
type Mock struct {
	mu sync.Mutex

	logs    [][]telemetry.LogEntry
	objects [][]telemetry.RegisteredObject
	spans   [][]sdktrace.ReadOnlySpan
	events  [][]telemetry.FrontendEvent
	calls   map[string]int

	failNext int
	err      error
	flags    map[string]bool
	flagErr  error
	shutdown bool
}

// NewMock creates an empty Mock.
func NewMock() *Mock {
	return &Mock{calls: make(map[string]int), flags: make(map[string]bool)}
}

// FailNext makes the next n export calls fail.
func (m *Mock) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// SetError makes every export call fail with err until cleared with nil.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetFlag sets the value returned by CheckGatekeeper for key.
func (m *Mock) SetFlag(key string, value bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[key] = value
}

// SetFlagError makes CheckGatekeeper fail with err until cleared with nil.
func (m *Mock) SetFlagError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flagErr = err
}

// failure must be called with mu held.
func (m *Mock) failure(kind string) error {
	m.calls[kind]++
	if m.err != nil {
		return m.err
	}
	if m.failNext > 0 {
		m.failNext--
		return ErrMockFailure
	}
	return nil
}

func (m *Mock) ExportLogs(_ context.Context, batch []telemetry.LogEntry) telemetry.ExportResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("logs"); err != nil {
		return telemetry.Failed(err)
	}
	m.logs = append(m.logs, slices.Clone(batch))
	return telemetry.Succeeded(len(batch))
}

func (m *Mock) ExportObjects(_ context.Context, batch []telemetry.RegisteredObject) telemetry.ExportResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("objects"); err != nil {
		return telemetry.Failed(err)
	}
	m.objects = append(m.objects, slices.Clone(batch))
	return telemetry.Succeeded(len(batch))
}

func (m *Mock) ExportSpans(_ context.Context, batch []sdktrace.ReadOnlySpan) telemetry.ExportResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("spans"); err != nil {
		return telemetry.Failed(err)
	}
	m.spans = append(m.spans, slices.Clone(batch))
	return telemetry.Succeeded(len(batch))
}

func (m *Mock) ExportEvents(_ context.Context, batch []telemetry.FrontendEvent) telemetry.ExportResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("events"); err != nil {
		return telemetry.Failed(err)
	}
	m.events = append(m.events, slices.Clone(batch))
	return telemetry.Succeeded(len(batch))
}

func (m *Mock) CheckGatekeeper(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["gatekeeper"]++
	if m.flagErr != nil {
		return false, m.flagErr
	}
	return m.flags[key], nil
}

func (m *Mock) Shutdown(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = true
	return nil
}

// Calls returns how many times the given kind was called: "logs",
// "objects", "spans", "events" or "gatekeeper".
func (m *Mock) Calls(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

// LogBatches returns the successfully exported log batches.
func (m *Mock) LogBatches() [][]telemetry.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.logs)
}

// Logs returns every successfully exported log entry in order.
func (m *Mock) Logs() []telemetry.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Concat(m.logs...)
}

// Objects returns every successfully exported object in order.
func (m *Mock) Objects() []telemetry.RegisteredObject {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Concat(m.objects...)
}

// Spans returns every successfully exported span in order.
func (m *Mock) Spans() []sdktrace.ReadOnlySpan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Concat(m.spans...)
}

// Events returns every successfully exported event in order.
func (m *Mock) Events() []telemetry.FrontendEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Concat(m.events...)
}

// IsShutdown reports whether Shutdown was called.
func (m *Mock) IsShutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// Reset clears recorded batches, counts and scheduled failures.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs, m.objects, m.spans, m.events = nil, nil, nil, nil
	m.calls = make(map[string]int)
	m.failNext = 0
	m.err = nil
}
