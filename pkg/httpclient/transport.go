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

package httpclient

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tombee/beacon/internal/ambient"
)

// TraceHeader carries the ambient trace id of the calling operation.
const TraceHeader = "X-Beacon-Trace-ID"

// loggingTransport sets the User-Agent, forwards the ambient trace id and
// logs each request.
type loggingTransport struct {
	base      http.RoundTripper
	userAgent string
	logger    *slog.Logger
	store     *ambient.ContextStore
}

func newLoggingTransport(base http.RoundTripper, userAgent string, logger *slog.Logger) *loggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingTransport{
		base:      base,
		userAgent: userAgent,
		logger:    logger.With("component", "httpclient"),
		store:     ambient.New(),
	}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if traceID := t.store.GetString(req.Context(), ambient.KeyTraceID); traceID != "" && req.Header.Get(TraceHeader) == "" {
		req.Header.Set(TraceHeader, traceID)
	}

	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start).Milliseconds()
	target := sanitizeURL(req.URL)

	if err != nil {
		t.logger.Warn("http request failed",
			"method", req.Method,
			"url", target,
			"duration_ms", elapsed,
			"error", err.Error(),
		)
		return resp, err
	}

	level := slog.LevelDebug
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	t.logger.Log(req.Context(), level, "http request",
		"method", req.Method,
		"url", target,
		"status", resp.StatusCode,
		"duration_ms", elapsed,
	)
	return resp, nil
}
