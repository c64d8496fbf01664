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
	"crypto/tls"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func writeServerCA(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ca.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestTLSConfigZeroBuildsNil(t *testing.T) {
	cfg, err := TLSConfig{}.Build()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestTLSConfigBuild(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()

	cfg, err := TLSConfig{CAFile: writeServerCA(t, srv), ServerName: "example.com"}.Build()
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, "example.com", cfg.ServerName)
	assert.NotNil(t, cfg.RootCAs)
	assert.False(t, cfg.InsecureSkipVerify)
}

func TestTLSConfigErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))

	tests := []struct {
		name string
		cfg  TLSConfig
		want string
	}{
		{"missing CA", TLSConfig{CAFile: filepath.Join(dir, "nope.pem")}, "failed to read CA certificate"},
		{"bad CA", TLSConfig{CAFile: garbage}, "failed to parse CA certificate"},
		{"cert without key", TLSConfig{CertFile: garbage}, "requires both"},
		{"bad key pair", TLSConfig{CertFile: garbage, KeyFile: garbage}, "failed to load client certificate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateTLS(t *testing.T) {
	assert.NoError(t, ValidateTLS(nil))
	assert.NoError(t, ValidateTLS(&tls.Config{MinVersion: tls.VersionTLS13}))
	assert.Error(t, ValidateTLS(&tls.Config{MinVersion: tls.VersionTLS10}))
}

func TestFactoryTypes(t *testing.T) {
	ctx := context.Background()

	exp, err := New(ctx, Config{Type: TypeNone})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, exp)

	exp, err = New(ctx, Config{Type: TypeConsole, Writer: &nopWriter{}})
	require.NoError(t, err)
	assert.IsType(t, &Console{}, exp)
	require.NoError(t, exp.Shutdown(ctx))

	exp, err = New(ctx, Config{APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &HTTP{}, exp)
	require.NoError(t, exp.Shutdown(ctx))

	_, err = New(ctx, Config{Type: "kafka"})
	assert.ErrorContains(t, err, "unknown exporter type")
}

func TestFactoryHTTPOverTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":true}`))
	}))
	defer srv.Close()

	exp, err := New(context.Background(), Config{
		Endpoint: srv.URL,
		APIKey:   "k",
		TLS:      TLSConfig{CAFile: writeServerCA(t, srv)},
	})
	require.NoError(t, err)
	defer exp.Shutdown(context.Background())

	gc, ok := exp.(GatekeeperChecker)
	require.True(t, ok)
	on, err := gc.CheckGatekeeper(context.Background(), "secure")
	require.NoError(t, err)
	assert.True(t, on)
}

func TestOTLPHTTPExportsSpans(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/traces" {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mock := NewMock()
	exp, err := New(context.Background(), Config{
		Type:         TypeOTLPHTTP,
		OTLPEndpoint: srv.Listener.Addr().String(),
		OTLPInsecure: true,
		Writer:       &nopWriter{},
	})
	require.NoError(t, err)
	otlp := exp.(*OTLP)
	otlp.Exporter = mock

	stubs := tracetest.SpanStubs{{Name: "work", StartTime: time.Unix(1, 0), EndTime: time.Unix(2, 0)}}
	res := otlp.ExportSpans(context.Background(), stubs.Snapshots())
	require.True(t, res.Success, "export failed: %v", res.Err)
	assert.EqualValues(t, 1, hits.Load())

	require.True(t, otlp.ExportLogs(context.Background(), sampleLogs(1)).Success)
	assert.Len(t, mock.Logs(), 1)

	require.NoError(t, otlp.Shutdown(context.Background()))
	assert.True(t, mock.IsShutdown())
}

func TestOTLPGRPCConnectsLazily(t *testing.T) {
	exp, err := NewOTLP(context.Background(), OTLPConfig{Endpoint: "127.0.0.1:4317", Insecure: true})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, exp.Shutdown(ctx))
}

func TestOTLPRequiresEndpoint(t *testing.T) {
	_, err := NewOTLP(context.Background(), OTLPConfig{})
	assert.Error(t, err)

	_, err = NewOTLP(context.Background(), OTLPConfig{Endpoint: "x:1", Protocol: "udp"})
	assert.ErrorContains(t, err, "unsupported otlp protocol")
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }
