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

// Package spanconv converts finished OpenTelemetry spans into the
// OTLP/JSON-shaped tree the ingestion service accepts.
package spanconv

import (
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/beacon/pkg/telemetry"
)

// UnknownService is used for spans whose resource has no service.name.
const UnknownService = "unknown_service"

// OTLP status codes. Note that they differ from the values of otel/codes.
const (
	StatusUnset = 0
	StatusOK    = 1
	StatusError = 2
)

// Request is the resourceSpans tree.
type Request struct {
	ResourceSpans []ResourceSpans `json:"resourceSpans"`
}

type ResourceSpans struct {
	Resource   Resource     `json:"resource"`
	ScopeSpans []ScopeSpans `json:"scopeSpans"`
}

type Resource struct {
	Attributes []KeyValue `json:"attributes"`
}

type ScopeSpans struct {
	Scope Scope  `json:"scope"`
	Spans []Span `json:"spans"`
}

type Scope struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type Span struct {
	TraceID           string     `json:"traceId"`
	SpanID            string     `json:"spanId"`
	ParentSpanID      string     `json:"parentSpanId,omitempty"`
	Name              string     `json:"name"`
	Kind              int        `json:"kind"`
	StartTimeUnixNano string     `json:"startTimeUnixNano"`
	EndTimeUnixNano   string     `json:"endTimeUnixNano"`
	Attributes        []KeyValue `json:"attributes"`
	Events            []Event    `json:"events,omitempty"`
	Status            Status     `json:"status"`
}

type Event struct {
	TimeUnixNano string     `json:"timeUnixNano"`
	Name         string     `json:"name"`
	Attributes   []KeyValue `json:"attributes,omitempty"`
}

type Status struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// KeyValue is one attribute.
type KeyValue struct {
	Key   string   `json:"key"`
	Value AnyValue `json:"value"`
}

// AnyValue holds exactly one of the four scalar kinds. Integers are
// encoded as decimal strings, as in OTLP/JSON.
type AnyValue struct {
	StringValue *string  `json:"stringValue,omitempty"`
	IntValue    *string  `json:"intValue,omitempty"`
	DoubleValue *float64 `json:"doubleValue,omitempty"`
	BoolValue   *bool    `json:"boolValue,omitempty"`
}

// Convert groups spans by service name, then by instrumentation scope,
// preserving first-seen order at both levels.
func Convert(spans []sdktrace.ReadOnlySpan) Request {
	type scopeKey struct{ name, version string }
	type resourceGroup struct {
		rs     ResourceSpans
		scopes map[scopeKey]int
	}

	var (
		order  []string
		groups = make(map[string]*resourceGroup)
	)

	for _, s := range spans {
		service, attrs := resourceOf(s)
		g, ok := groups[service]
		if !ok {
			g = &resourceGroup{
				rs:     ResourceSpans{Resource: Resource{Attributes: attrs}},
				scopes: make(map[scopeKey]int),
			}
			groups[service] = g
			order = append(order, service)
		}

		scope := s.InstrumentationScope()
		key := scopeKey{scope.Name, scope.Version}
		idx, ok := g.scopes[key]
		if !ok {
			idx = len(g.rs.ScopeSpans)
			g.scopes[key] = idx
			g.rs.ScopeSpans = append(g.rs.ScopeSpans, ScopeSpans{
				Scope: Scope{Name: scope.Name, Version: scope.Version},
			})
		}
		g.rs.ScopeSpans[idx].Spans = append(g.rs.ScopeSpans[idx].Spans, ConvertSpan(s))
	}

	req := Request{ResourceSpans: make([]ResourceSpans, 0, len(order))}
	for _, service := range order {
		req.ResourceSpans = append(req.ResourceSpans, groups[service].rs)
	}
	return req
}

func resourceOf(s sdktrace.ReadOnlySpan) (string, []KeyValue) {
	res := s.Resource()
	if res == nil {
		return UnknownService, []KeyValue{stringKV(string(semconv.ServiceNameKey), UnknownService)}
	}

	service := UnknownService
	if v, ok := res.Set().Value(semconv.ServiceNameKey); ok && v.AsString() != "" {
		service = v.AsString()
	}
	return service, Attributes(res.Attributes())
}

// ConvertSpan converts one span.
func ConvertSpan(s sdktrace.ReadOnlySpan) Span {
	sc := s.SpanContext()
	out := Span{
		TraceID:           sc.TraceID().String(),
		SpanID:            sc.SpanID().String(),
		Name:              s.Name(),
		Kind:              Kind(s.SpanKind()),
		StartTimeUnixNano: unixNano(s.StartTime()),
		EndTimeUnixNano:   unixNano(s.EndTime()),
		Attributes:        Attributes(s.Attributes()),
		Status:            ConvertStatus(s.Status()),
	}
	if parent := s.Parent(); parent.IsValid() {
		out.ParentSpanID = parent.SpanID().String()
	}
	for _, ev := range s.Events() {
		out.Events = append(out.Events, Event{
			TimeUnixNano: unixNano(ev.Time),
			Name:         ev.Name,
			Attributes:   Attributes(ev.Attributes),
		})
	}
	return out
}

// Kind maps a span kind to its OTLP value. Unspecified becomes internal.
func Kind(k trace.SpanKind) int {
	if k == trace.SpanKindUnspecified {
		return int(trace.SpanKindInternal)
	}
	return int(k)
}

// ConvertStatus maps otel status codes to OTLP codes.
func ConvertStatus(st sdktrace.Status) Status {
	switch st.Code {
	case codes.Ok:
		return Status{Code: StatusOK}
	case codes.Error:
		return Status{Code: StatusError, Message: st.Description}
	default:
		return Status{Code: StatusUnset}
	}
}

// Attributes narrows each value to string, int, double or bool. Slices are
// stringified.
func Attributes(kvs []attribute.KeyValue) []KeyValue {
	if len(kvs) == 0 {
		return []KeyValue{}
	}
	out := make([]KeyValue, 0, len(kvs))
	for _, kv := range kvs {
		out = append(out, KeyValue{Key: string(kv.Key), Value: Value(kv.Value)})
	}
	return out
}

// Value narrows a single attribute value.
func Value(v attribute.Value) AnyValue {
	switch v.Type() {
	case attribute.BOOL:
		b := v.AsBool()
		return AnyValue{BoolValue: &b}
	case attribute.INT64:
		i := strconv.FormatInt(v.AsInt64(), 10)
		return AnyValue{IntValue: &i}
	case attribute.FLOAT64:
		f := v.AsFloat64()
		if s, ok := telemetry.NonFinite(f); ok {
			return AnyValue{StringValue: &s}
		}
		return AnyValue{DoubleValue: &f}
	case attribute.STRING:
		s := v.AsString()
		return AnyValue{StringValue: &s}
	default:
		s := v.Emit()
		return AnyValue{StringValue: &s}
	}
}

func stringKV(key, value string) KeyValue {
	return KeyValue{Key: key, Value: AnyValue{StringValue: &value}}
}

func unixNano(t time.Time) string {
	if t.IsZero() || t.Before(time.Unix(0, 0)) {
		return "0"
	}
	return strconv.FormatInt(t.UnixNano(), 10)
}
