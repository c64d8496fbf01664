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
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/tombee/beacon/internal/ambient"
	"github.com/tombee/beacon/internal/export"
	"github.com/tombee/beacon/internal/session"
)

// Option configures a Client.
type Option func(*Client) error

// WithExporter replaces the exporter built from the configuration.
func WithExporter(e export.Exporter) Option {
	return func(c *Client) error {
		if e == nil {
			return fmt.Errorf("exporter cannot be nil")
		}
		c.exporter = e
		return nil
	}
}

// WithLogger sets the logger for the client's own diagnostics. It should
// not route back into the same client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithMeterProvider records pipeline metrics on mp instead of the global
// provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Client) error {
		if mp == nil {
			return fmt.Errorf("meter provider cannot be nil")
		}
		c.meterProvider = mp
		return nil
	}
}

// WithClock sets the time source used by every component.
func WithClock(now func() time.Time) Option {
	return func(c *Client) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		c.now = now
		return nil
	}
}

// WithRand sets the source of the error and replay sampling draws.
func WithRand(r func() float64) Option {
	return func(c *Client) error {
		if r == nil {
			return fmt.Errorf("rand cannot be nil")
		}
		c.rand = r
		return nil
	}
}

// WithSessionStore overrides the session store named in the configuration.
func WithSessionStore(s session.Store) Option {
	return func(c *Client) error {
		c.sessionStore = s
		c.sessionStoreSet = true
		return nil
	}
}

// WithAmbientStore replaces the context-backed ambient store.
func WithAmbientStore(s ambient.Store) Option {
	return func(c *Client) error {
		if s == nil {
			return fmt.Errorf("ambient store cannot be nil")
		}
		c.ambient = s
		return nil
	}
}

// WithConsoleWriter redirects console exporter output (default: os.Stdout).
func WithConsoleWriter(w io.Writer) Option {
	return func(c *Client) error {
		if w == nil {
			return fmt.Errorf("console writer cannot be nil")
		}
		c.consoleOut = w
		return nil
	}
}

// WithHTTPClient reports failed requests made through client instead of
// http.DefaultClient when errors.capture_http is enabled.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		if client == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		c.httpClient = client
		return nil
	}
}
