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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/beacon/internal/commands/shared"
	"github.com/tombee/beacon/internal/storage"
)

type fixture struct {
	dbPath string

	mu       sync.Mutex
	received map[string][]string
	status   int
}

// setup writes a config file pointing at a fresh database and an ingestion
// server that records every request by path.
func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{received: map[string][]string{}, status: http.StatusAccepted}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.received[r.URL.Path] = append(f.received[r.URL.Path], string(body))
		status := f.status
		f.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	f.dbPath = filepath.Join(dir, "beacon.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	yaml := "storage:\n  path: " + f.dbPath + "\n  dead_letter: true\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("BEACON_API_KEY", "key-123")
	t.Setenv("BEACON_ENDPOINT", srv.URL)
	shared.SetConfigPathForTest(cfgPath)
	shared.SetJSONForTest(false)
	t.Cleanup(func() {
		shared.SetConfigPathForTest("")
		shared.SetJSONForTest(false)
	})
	return f
}

func (f *fixture) add(t *testing.T, kind, body string, items int) {
	t.Helper()
	store, err := storage.New(storage.Config{Path: f.dbPath})
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.AddDeadLetter(context.Background(), kind, json.RawMessage(body), items, "requeue limit exceeded"))
}

func (f *fixture) remaining(t *testing.T) []storage.DeadLetter {
	t.Helper()
	store, err := storage.New(storage.Config{Path: f.dbPath})
	require.NoError(t, err)
	defer store.Close()
	letters, err := store.ListDeadLetters(context.Background(), storage.DeadLetterFilter{})
	require.NoError(t, err)
	return letters
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestList(t *testing.T) {
	f := setup(t)
	f.add(t, storage.KindLogs, `{"project_name":"checkout","logs":[]}`, 2)
	f.add(t, storage.KindEvents, `{"project_name":"checkout","events":[]}`, 5)

	out, err := execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "logs")
	assert.Contains(t, out, "events")
	assert.Contains(t, out, "requeue limit exceeded")
}

func TestList_JSONWithKind(t *testing.T) {
	f := setup(t)
	f.add(t, storage.KindLogs, `{"logs":[]}`, 2)
	f.add(t, storage.KindEvents, `{"events":[]}`, 5)
	shared.SetJSONForTest(true)

	out, err := execute(t, "list", "--kind", "events")
	require.NoError(t, err)

	var result ListResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.DeadLetters, 1)
	assert.Equal(t, "events", result.DeadLetters[0].Kind)
	assert.Equal(t, 5, result.DeadLetters[0].Items)
}

func TestList_Empty(t *testing.T) {
	setup(t)

	out, err := execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No dead letters.")
}

func TestList_UnknownKind(t *testing.T) {
	setup(t)

	_, err := execute(t, "list", "--kind", "metrics")
	require.Error(t, err)
}

func TestList_RequiresStoragePath(t *testing.T) {
	setup(t)
	shared.SetConfigPathForTest("")

	_, err := execute(t, "list")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidConfig, shared.ExitCode(err))
}

func TestReplay(t *testing.T) {
	f := setup(t)
	logsBody := `{"project_name":"checkout","logs":[{"msg":"a"},{"msg":"b"}]}`
	f.add(t, storage.KindLogs, logsBody, 2)
	f.add(t, storage.KindSpans, `{"project_name":"checkout","spans":[]}`, 1)

	out, err := execute(t, "replay")
	require.NoError(t, err)
	assert.Contains(t, out, "replayed 2 dead letters (3 items)")

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.received["/api/v1/logs"], 1)
	assert.JSONEq(t, logsBody, f.received["/api/v1/logs"][0])
	assert.Len(t, f.received["/api/v1/spans"], 1)

	assert.Empty(t, f.remaining(t))
}

func TestReplay_KeepsFailures(t *testing.T) {
	f := setup(t)
	f.add(t, storage.KindLogs, `{"logs":[]}`, 1)
	f.mu.Lock()
	f.status = http.StatusServiceUnavailable
	f.mu.Unlock()

	_, err := execute(t, "replay")
	require.Error(t, err)
	assert.Equal(t, shared.ExitTransportError, shared.ExitCode(err))
	assert.Len(t, f.remaining(t), 1)
}

func TestReplay_RequiresAPIKey(t *testing.T) {
	f := setup(t)
	f.add(t, storage.KindLogs, `{"logs":[]}`, 1)
	t.Setenv("BEACON_API_KEY", "")

	_, err := execute(t, "replay")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidConfig, shared.ExitCode(err))
	assert.Len(t, f.remaining(t), 1)
}

func TestPurge(t *testing.T) {
	f := setup(t)
	f.add(t, storage.KindLogs, `{"logs":[]}`, 1)
	f.add(t, storage.KindEvents, `{"events":[]}`, 1)

	out, err := execute(t, "purge", "--older-than", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 0 dead letters")
	assert.Len(t, f.remaining(t), 2)

	out, err = execute(t, "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 2 dead letters")
	assert.Empty(t, f.remaining(t))
}
