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

// Package metrics records pipeline accounting as OpenTelemetry instruments.
//
// Collector implements buffer.Observer. Without an explicit provider it uses
// the global MeterProvider, which is a no-op unless the host configures one.
// NewPrometheusProvider builds a provider backed by the Prometheus exporter
// for the CLI's metrics endpoint.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ScopeName is the instrumentation scope of every instrument.
const ScopeName = "github.com/tombee/beacon"

// Collector records buffer and error-tracker activity.
type Collector struct {
	enqueued  metric.Int64Counter
	exported  metric.Int64Counter
	requeued  metric.Int64Counter
	dropped   metric.Int64Counter
	errors    metric.Int64Counter
	flushTime metric.Float64Histogram

	queuesMu sync.RWMutex
	queues   map[string]func() int
}

// NewCollector creates the instruments on mp. A nil mp means the global
// provider.
func NewCollector(mp metric.MeterProvider) (*Collector, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(ScopeName)

	c := &Collector{queues: make(map[string]func() int)}

	var err error
	c.enqueued, err = meter.Int64Counter(
		"beacon_items_enqueued_total",
		metric.WithDescription("Items added to a telemetry buffer"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	c.exported, err = meter.Int64Counter(
		"beacon_items_exported_total",
		metric.WithDescription("Items exported successfully"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	c.requeued, err = meter.Int64Counter(
		"beacon_items_requeued_total",
		metric.WithDescription("Items put back after a failed export"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	c.dropped, err = meter.Int64Counter(
		"beacon_items_dropped_total",
		metric.WithDescription("Items discarded after a failed export"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	c.errors, err = meter.Int64Counter(
		"beacon_errors_total",
		metric.WithDescription("Errors observed by the error tracker, by outcome"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	c.flushTime, err = meter.Float64Histogram(
		"beacon_flush_duration_seconds",
		metric.WithDescription("Time spent exporting one batch"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"beacon_queue_depth",
		metric.WithDescription("Items currently waiting in a telemetry buffer"),
		metric.WithUnit("{item}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			c.queuesMu.RLock()
			defer c.queuesMu.RUnlock()
			for name, depth := range c.queues {
				o.Observe(int64(depth()), metric.WithAttributes(bufferAttr(name)))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

func bufferAttr(name string) attribute.KeyValue {
	return attribute.String("buffer", name)
}

// Enqueued implements buffer.Observer.
func (c *Collector) Enqueued(buffer string, n int) {
	c.enqueued.Add(context.Background(), int64(n), metric.WithAttributes(bufferAttr(buffer)))
}

// Flushed implements buffer.Observer.
func (c *Collector) Flushed(buffer string, exported, requeued, dropped int, elapsed time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(bufferAttr(buffer))
	if exported > 0 {
		c.exported.Add(ctx, int64(exported), attrs)
	}
	if requeued > 0 {
		c.requeued.Add(ctx, int64(requeued), attrs)
	}
	if dropped > 0 {
		c.dropped.Add(ctx, int64(dropped), attrs)
	}
	c.flushTime.Record(ctx, elapsed.Seconds(), attrs)
}

// ErrorObserved counts one error-tracker decision. outcome is one of
// forwarded, suppressed, limited or sampled_out.
func (c *Collector) ErrorObserved(outcome string) {
	c.errors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// TrackQueue reports depth() under the beacon_queue_depth gauge.
func (c *Collector) TrackQueue(buffer string, depth func() int) {
	c.queuesMu.Lock()
	defer c.queuesMu.Unlock()
	c.queues[buffer] = depth
}

// PrometheusProvider is a MeterProvider exposed through a Prometheus registry.
type PrometheusProvider struct {
	*sdkmetric.MeterProvider
	registry *prometheus.Registry
}

// NewPrometheusProvider creates a provider whose instruments are served by
// Handler. Each provider has its own registry.
func NewPrometheusProvider(serviceName, version string) (*PrometheusProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	return &PrometheusProvider{MeterProvider: mp, registry: reg}, nil
}

// Handler serves the registry in the Prometheus text format.
func (p *PrometheusProvider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
