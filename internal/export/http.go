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
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tombee/beacon/pkg/errors"
	"github.com/tombee/beacon/pkg/httpclient"
	"github.com/tombee/beacon/pkg/telemetry"
)

// DefaultEndpoint is the ingestion service base URL.
const DefaultEndpoint = "https://ingest.beacon.dev"

// Ingestion paths relative to the endpoint.
const (
	PathLogs       = "/api/v1/logs"
	PathObjects    = "/api/v1/objects"
	PathSpans      = "/api/v1/spans"
	PathEvents     = "/api/v1/events"
	PathGatekeeper = "/api/v1/gatekeeper/"
)

// Supported request body encodings.
const (
	CompressionNone = ""
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 64 << 10

// HTTPConfig configures the HTTP exporter.
type HTTPConfig struct {
	// Endpoint is the base URL (default: DefaultEndpoint).
	Endpoint string

	// APIKey is sent as a bearer token. When empty every call is delegated
	// to Fallback.
	APIKey string

	// Resource is used when a batch's first element carries none.
	Resource telemetry.Resource

	// Compression is "", "gzip" or "zstd".
	Compression string

	// Client overrides the HTTP client built from pkg/httpclient.
	Client *http.Client

	// Fallback receives batches when APIKey is empty (default: a stdout
	// Console).
	Fallback Exporter

	Logger *slog.Logger
}

// HTTP posts batches to the ingestion service.
type HTTP struct {
	endpoint    string
	apiKey      string
	resource    telemetry.Resource
	compression string
	client      *http.Client
	fallback    Exporter
	logger      *slog.Logger
}

// NewHTTP creates an HTTP exporter.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, &errors.ConfigError{Key: "endpoint", Reason: "invalid URL", Cause: err}
	}

	switch cfg.Compression {
	case CompressionNone, CompressionGzip, CompressionZstd:
	default:
		return nil, &errors.ConfigError{
			Key:    "compression",
			Reason: fmt.Sprintf("unsupported value %q", cfg.Compression),
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := cfg.Client
	if client == nil {
		hc := httpclient.DefaultConfig()
		hc.Logger = logger
		c, err := httpclient.New(hc)
		if err != nil {
			return nil, err
		}
		client = c
	}

	fallback := cfg.Fallback
	if fallback == nil && cfg.APIKey == "" {
		c, err := NewConsole(ConsoleConfig{})
		if err != nil {
			return nil, err
		}
		fallback = c
	}

	return &HTTP{
		endpoint:    endpoint,
		apiKey:      cfg.APIKey,
		resource:    cfg.Resource,
		compression: cfg.Compression,
		client:      client,
		fallback:    fallback,
		logger:      logger.With("component", "export", "exporter", "http"),
	}, nil
}

func (h *HTTP) ExportLogs(ctx context.Context, batch []telemetry.LogEntry) telemetry.ExportResult {
	if h.apiKey == "" {
		return h.fallback.ExportLogs(ctx, batch)
	}
	if len(batch) == 0 {
		return telemetry.Succeeded(0)
	}
	return h.post(ctx, PathLogs, EncodeLogs(batch, h.resource), len(batch))
}

func (h *HTTP) ExportObjects(ctx context.Context, batch []telemetry.RegisteredObject) telemetry.ExportResult {
	if h.apiKey == "" {
		return h.fallback.ExportObjects(ctx, batch)
	}
	if len(batch) == 0 {
		return telemetry.Succeeded(0)
	}
	return h.post(ctx, PathObjects, EncodeObjects(batch, h.resource), len(batch))
}

func (h *HTTP) ExportSpans(ctx context.Context, batch []sdktrace.ReadOnlySpan) telemetry.ExportResult {
	if h.apiKey == "" {
		return h.fallback.ExportSpans(ctx, batch)
	}
	if len(batch) == 0 {
		return telemetry.Succeeded(0)
	}
	return h.post(ctx, PathSpans, EncodeSpans(batch, h.resource), len(batch))
}

func (h *HTTP) ExportEvents(ctx context.Context, batch []telemetry.FrontendEvent) telemetry.ExportResult {
	if h.apiKey == "" {
		return h.fallback.ExportEvents(ctx, batch)
	}
	if len(batch) == 0 {
		return telemetry.Succeeded(0)
	}
	return h.post(ctx, PathEvents, EncodeEvents(batch, h.resource), len(batch))
}

// KindPaths maps a buffer kind to its ingestion path.
var KindPaths = map[string]string{
	"logs":    PathLogs,
	"objects": PathObjects,
	"spans":   PathSpans,
	"events":  PathEvents,
}

// Send posts an already encoded request body to path. It is used to
// replay dead letters.
func (h *HTTP) Send(ctx context.Context, path string, body json.RawMessage, n int) telemetry.ExportResult {
	return h.post(ctx, path, body, n)
}

// CheckGatekeeper fetches a remote flag value.
func (h *HTTP) CheckGatekeeper(ctx context.Context, key string) (bool, error) {
	if h.apiKey == "" {
		if gc, ok := h.fallback.(GatekeeperChecker); ok {
			return gc.CheckGatekeeper(ctx, key)
		}
		return false, nil
	}

	target := h.endpoint + PathGatekeeper + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, &errors.TransportError{Endpoint: target, Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return false, &errors.TransportError{Endpoint: target, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return false, errors.NewStatusError(target, resp.StatusCode, body)
	}

	var out struct {
		Value bool `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode gatekeeper response: %w", err)
	}
	return out.Value, nil
}

// Shutdown closes idle connections and the fallback exporter.
func (h *HTTP) Shutdown(ctx context.Context) error {
	h.client.CloseIdleConnections()
	if h.fallback != nil {
		return h.fallback.Shutdown(ctx)
	}
	return nil
}

func (h *HTTP) post(ctx context.Context, path string, body any, n int) telemetry.ExportResult {
	target := h.endpoint + path

	payload, err := h.encode(body)
	if err != nil {
		return telemetry.Failed(&errors.ValidationError{Field: path, Message: "encode: " + err.Error()})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return telemetry.Failed(&errors.TransportError{Endpoint: target, Cause: err})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	if h.compression != CompressionNone {
		req.Header.Set("Content-Encoding", h.compression)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return telemetry.Failed(&errors.TransportError{Endpoint: target, Cause: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return telemetry.Failed(errors.NewStatusError(target, resp.StatusCode, respBody))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	h.logger.Debug("batch exported", "path", path, "items", n, "bytes", len(payload))
	return telemetry.Succeeded(n)
}

func (h *HTTP) encode(body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch h.compression {
	case CompressionGzip:
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(raw); err != nil {
			zw.Close()
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return raw, nil
	}
}
