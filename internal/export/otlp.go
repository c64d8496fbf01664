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
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"

	"github.com/tombee/beacon/pkg/telemetry"
)

// OTLP protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// OTLPConfig configures span export to an OpenTelemetry collector.
type OTLPConfig struct {
	// Protocol is "grpc" (default) or "http".
	Protocol string

	// Endpoint is host:port, e.g. "localhost:4317".
	Endpoint string

	// URLPath overrides the HTTP traces path (default: "/v1/traces").
	URLPath string

	// Insecure disables TLS. Development only.
	Insecure bool

	// TLS is used when Insecure is false. Nil means system roots with TLS 1.2.
	TLS *tls.Config

	Headers map[string]string

	// Inner receives logs, objects and events (default: Nop).
	Inner Exporter
}

// OTLP sends spans to a collector and delegates every other kind to Inner.
type OTLP struct {
	Exporter
	spans sdktrace.SpanExporter
}

// NewOTLP creates an OTLP span exporter. Connections are established lazily.
func NewOTLP(ctx context.Context, cfg OTLPConfig) (*OTLP, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("otlp endpoint is required")
	}
	if err := ValidateTLS(cfg.TLS); err != nil {
		return nil, fmt.Errorf("invalid TLS config: %w", err)
	}
	tlsCfg := cfg.TLS
	if tlsCfg == nil {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	var (
		spans sdktrace.SpanExporter
		err   error
	)
	switch cfg.Protocol {
	case "", ProtocolGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(tlsCfg)))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		spans, err = otlptracegrpc.New(ctx, opts...)
	case ProtocolHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.URLPath != "" {
			opts = append(opts, otlptracehttp.WithURLPath(cfg.URLPath))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else {
			opts = append(opts, otlptracehttp.WithTLSClientConfig(tlsCfg))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		spans, err = otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", cfg.Protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP %s exporter: %w", cfg.Protocol, err)
	}

	inner := cfg.Inner
	if inner == nil {
		inner = Nop{}
	}
	return &OTLP{Exporter: inner, spans: spans}, nil
}

func (o *OTLP) ExportSpans(ctx context.Context, batch []sdktrace.ReadOnlySpan) telemetry.ExportResult {
	if len(batch) == 0 {
		return telemetry.Succeeded(0)
	}
	if err := o.spans.ExportSpans(ctx, batch); err != nil {
		return telemetry.Failed(err)
	}
	return telemetry.Succeeded(len(batch))
}

// Shutdown stops the span exporter and the inner exporter.
func (o *OTLP) Shutdown(ctx context.Context) error {
	return errors.Join(o.spans.Shutdown(ctx), o.Exporter.Shutdown(ctx))
}
