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

package tail

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/beacon/internal/commands/shared"
	beaconlog "github.com/tombee/beacon/internal/log"
	"github.com/tombee/beacon/internal/metrics"
)

type recorder struct {
	mu     sync.Mutex
	bodies []string
}

func (r *recorder) joined() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.bodies, "\n")
}

func setupEnv(t *testing.T) *recorder {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.bodies = append(rec.bodies, string(body))
		rec.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("BEACON_API_KEY", "key-123")
	t.Setenv("BEACON_ENDPOINT", srv.URL)
	t.Setenv("BEACON_PROJECT", "cli-test")
	shared.SetConfigPathForTest("")
	return rec
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewCommand()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestTail_Stdin(t *testing.T) {
	rec := setupEnv(t)

	input := "first line\n\n" + `{"level":"error","msg":"second line","code":42}` + "\n"
	out, errOut, err := execute(t, input)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "forwarded 2 lines")

	sent := rec.joined()
	assert.Contains(t, sent, `"first line"`)
	assert.Contains(t, sent, `"second line"`)
	assert.Contains(t, sent, `"error"`)
	assert.Contains(t, sent, `"tail"`)
}

func TestTail_Passthrough(t *testing.T) {
	setupEnv(t)

	input := "one\ntwo\n"
	out, _, err := execute(t, input, "--passthrough", "--source", "worker")
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestTail_File(t *testing.T) {
	rec := setupEnv(t)

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("from file\n"), 0o600))

	_, _, err := execute(t, "ignored stdin\n", path)
	require.NoError(t, err)

	sent := rec.joined()
	assert.Contains(t, sent, "from file")
	assert.NotContains(t, sent, "ignored stdin")
}

func TestTail_MissingFile(t *testing.T) {
	setupEnv(t)

	_, _, err := execute(t, "", filepath.Join(t.TempDir(), "nope.log"))
	require.Error(t, err)
}

func TestTail_RejectsUnknownLevel(t *testing.T) {
	setupEnv(t)

	_, _, err := execute(t, "x\n", "--level", "loud")
	require.Error(t, err)
}

func TestMetricsHandler(t *testing.T) {
	provider, err := metrics.NewPrometheusProvider("beacon-tail", "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	collector, err := metrics.NewCollector(provider)
	require.NoError(t, err)
	collector.Enqueued("logs", 3)

	srv := httptest.NewServer(metricsHandler(provider, beaconlog.Discard()))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "beacon_")
}

func TestTail_FollowRequiresFile(t *testing.T) {
	setupEnv(t)

	_, _, err := execute(t, "", "--follow")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--follow requires a file")
}
