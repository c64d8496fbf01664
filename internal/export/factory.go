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
	"fmt"
	"io"
	"log/slog"

	"github.com/tombee/beacon/pkg/httpclient"
	"github.com/tombee/beacon/pkg/telemetry"
)

// Exporter types accepted by New.
const (
	TypeHTTP     = "http"
	TypeConsole  = "console"
	TypeOTLP     = "otlp"
	TypeOTLPHTTP = "otlp-http"
	TypeNone     = "none"
)

// Config selects and configures an exporter.
type Config struct {
	// Type is one of http (default), console, otlp, otlp-http or none.
	Type string

	// Endpoint and APIKey address the ingestion service.
	Endpoint string
	APIKey   string

	Resource    telemetry.Resource
	Compression string
	TLS         TLSConfig

	// OTLPEndpoint is the collector address for the otlp types. Logs,
	// objects and events still go to the ingestion service.
	OTLPEndpoint string
	OTLPInsecure bool
	Headers      map[string]string

	// Writer redirects console output (default: os.Stdout).
	Writer io.Writer

	Logger *slog.Logger
}

// New builds the exporter named by cfg.Type.
func New(ctx context.Context, cfg Config) (Exporter, error) {
	tlsCfg, err := cfg.TLS.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build TLS config: %w", err)
	}

	switch cfg.Type {
	case "", TypeHTTP:
		return newHTTPFromConfig(cfg, tlsCfg)

	case TypeConsole:
		return NewConsole(ConsoleConfig{Writer: cfg.Writer, PrettyPrint: true})

	case TypeOTLP, TypeOTLPHTTP, "otlp_http":
		inner, err := newHTTPFromConfig(cfg, tlsCfg)
		if err != nil {
			return nil, err
		}
		protocol := ProtocolGRPC
		if cfg.Type != TypeOTLP {
			protocol = ProtocolHTTP
		}
		return NewOTLP(ctx, OTLPConfig{
			Protocol: protocol,
			Endpoint: cfg.OTLPEndpoint,
			Insecure: cfg.OTLPInsecure,
			TLS:      tlsCfg,
			Headers:  cfg.Headers,
			Inner:    inner,
		})

	case TypeNone:
		return Nop{}, nil

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.Type)
	}
}

func newHTTPFromConfig(cfg Config, tlsCfg *tls.Config) (*HTTP, error) {
	hc := httpclient.DefaultConfig()
	hc.Logger = cfg.Logger
	hc.TLS = tlsCfg
	client, err := httpclient.New(hc)
	if err != nil {
		return nil, err
	}

	var fallback Exporter
	if cfg.APIKey == "" {
		c, err := NewConsole(ConsoleConfig{Writer: cfg.Writer})
		if err != nil {
			return nil, err
		}
		fallback = c
	}

	return NewHTTP(HTTPConfig{
		Endpoint:    cfg.Endpoint,
		APIKey:      cfg.APIKey,
		Resource:    cfg.Resource,
		Compression: cfg.Compression,
		Client:      client,
		Fallback:    fallback,
		Logger:      cfg.Logger,
	})
}
