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
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tombee/beacon/pkg/telemetry"
)

func TestConsoleLogsAsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	c, err := NewConsole(ConsoleConfig{Writer: &buf})
	require.NoError(t, err)
	defer c.Shutdown(context.Background())

	entry := telemetry.LogEntry{
		Message:    "payment declined",
		Level:      telemetry.LevelWarn,
		Timestamp:  time.UnixMilli(1_700_000_000_000),
		File:       "pay.go",
		Line:       42,
		Properties: map[string]any{"order": "o-1"},
	}
	res := c.ExportLogs(context.Background(), []telemetry.LogEntry{entry})
	require.True(t, res.Success)
	assert.Equal(t, 1, res.ItemsExported)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "payment declined", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "warn", line["lvl"])
	assert.Equal(t, "pay.go", line["fl"])
	assert.EqualValues(t, 42, line["ln"])
	assert.Equal(t, map[string]any{"order": "o-1"}, line["props"])
}

func TestConsoleObjectsAndEvents(t *testing.T) {
	var buf bytes.Buffer
	c, err := NewConsole(ConsoleConfig{Writer: &buf})
	require.NoError(t, err)
	defer c.Shutdown(context.Background())

	ctx := context.Background()
	require.True(t, c.ExportObjects(ctx, []telemetry.RegisteredObject{{Name: "user", ID: "u-1"}}).Success)
	require.True(t, c.ExportEvents(ctx, []telemetry.FrontendEvent{{
		Type:  telemetry.EventError,
		Error: &telemetry.ErrorData{Message: "boom", Type: "manual"},
	}}).Success)

	out := buf.String()
	assert.Contains(t, out, `"id":"u-1"`)
	assert.Contains(t, out, `"type":"error"`)
	assert.Contains(t, out, `"message":"boom"`)
}

func TestConsoleSpans(t *testing.T) {
	var buf bytes.Buffer
	c, err := NewConsole(ConsoleConfig{Writer: &buf})
	require.NoError(t, err)

	stubs := tracetest.SpanStubs{{Name: "db.query", StartTime: time.Unix(1, 0), EndTime: time.Unix(2, 0)}}
	res := c.ExportSpans(context.Background(), stubs.Snapshots())
	require.True(t, res.Success, "export failed: %v", res.Err)
	assert.Contains(t, buf.String(), "db.query")

	require.NoError(t, c.Shutdown(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))
}

func TestMockFailNext(t *testing.T) {
	m := NewMock()
	m.FailNext(1)

	ctx := context.Background()
	first := m.ExportLogs(ctx, sampleLogs(2))
	assert.False(t, first.Success)
	assert.ErrorIs(t, first.Err, ErrMockFailure)

	second := m.ExportLogs(ctx, sampleLogs(2))
	assert.True(t, second.Success)

	assert.Equal(t, 2, m.Calls("logs"))
	assert.Len(t, m.LogBatches(), 1)
	assert.Len(t, m.Logs(), 2)
}

func TestMockSetErrorAndReset(t *testing.T) {
	m := NewMock()
	m.SetError(assert.AnError)

	res := m.ExportObjects(context.Background(), []telemetry.RegisteredObject{{ID: "1"}})
	assert.ErrorIs(t, res.Err, assert.AnError)
	assert.Empty(t, m.Objects())

	m.Reset()
	assert.Zero(t, m.Calls("objects"))
	assert.True(t, m.ExportObjects(context.Background(), []telemetry.RegisteredObject{{ID: "1"}}).Success)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.True(t, m.IsShutdown())
}

func TestMockGatekeeper(t *testing.T) {
	m := NewMock()
	m.SetFlag("on", true)

	v, err := m.CheckGatekeeper(context.Background(), "on")
	require.NoError(t, err)
	assert.True(t, v)

	v, err = m.CheckGatekeeper(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, v)

	m.SetFlagError(assert.AnError)
	_, err = m.CheckGatekeeper(context.Background(), "on")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 3, m.Calls("gatekeeper"))
}
