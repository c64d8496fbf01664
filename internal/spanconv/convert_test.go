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

package spanconv

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	traceID = trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36}
	rootID  = trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7}
	childID = trace.SpanID{0x53, 0x99, 0x5c, 0x3f, 0x42, 0xcd, 0x8a, 0xd8}
)

func spanContext(id trace.SpanID) trace.SpanContext {
	return trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: id, TraceFlags: trace.FlagsSampled})
}

func service(name string) *resource.Resource {
	return resource.NewSchemaless(semconv.ServiceName(name))
}

func TestConvert_GroupsByServiceThenScope(t *testing.T) {
	start := time.Unix(1700000000, 0)
	stubs := tracetest.SpanStubs{
		{Name: "a", SpanContext: spanContext(rootID), Resource: service("checkout"), InstrumentationScope: instrumentation.Scope{Name: "http"}, StartTime: start, EndTime: start},
		{Name: "b", SpanContext: spanContext(childID), Resource: service("payments"), InstrumentationScope: instrumentation.Scope{Name: "http"}, StartTime: start, EndTime: start},
		{Name: "c", SpanContext: spanContext(childID), Resource: service("checkout"), InstrumentationScope: instrumentation.Scope{Name: "db", Version: "1.2.0"}, StartTime: start, EndTime: start},
		{Name: "d", SpanContext: spanContext(rootID), Resource: service("checkout"), InstrumentationScope: instrumentation.Scope{Name: "http"}, StartTime: start, EndTime: start},
	}

	req := Convert(stubs.Snapshots())
	require.Len(t, req.ResourceSpans, 2)

	checkout := req.ResourceSpans[0]
	require.Len(t, checkout.ScopeSpans, 2)
	assert.Equal(t, Scope{Name: "http"}, checkout.ScopeSpans[0].Scope)
	assert.Equal(t, Scope{Name: "db", Version: "1.2.0"}, checkout.ScopeSpans[1].Scope)
	assert.Equal(t, []string{"a", "d"}, names(checkout.ScopeSpans[0].Spans))
	assert.Equal(t, []string{"c"}, names(checkout.ScopeSpans[1].Spans))

	payments := req.ResourceSpans[1]
	require.Len(t, payments.ScopeSpans, 1)
	assert.Equal(t, []string{"b"}, names(payments.ScopeSpans[0].Spans))
	assert.Contains(t, payments.Resource.Attributes, stringKV("service.name", "payments"))
}

func names(spans []Span) []string {
	var out []string
	for _, s := range spans {
		out = append(out, s.Name)
	}
	return out
}

func TestConvert_Empty(t *testing.T) {
	req := Convert(nil)
	assert.Empty(t, req.ResourceSpans)

	b, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"resourceSpans":[]}`, string(b))
}

func TestConvert_MissingResource(t *testing.T) {
	req := Convert(tracetest.SpanStubs{{Name: "orphan", SpanContext: spanContext(rootID)}}.Snapshots())
	require.Len(t, req.ResourceSpans, 1)
	assert.Equal(t, []KeyValue{stringKV("service.name", UnknownService)}, req.ResourceSpans[0].Resource.Attributes)
}

func TestConvertSpan(t *testing.T) {
	start := time.Unix(1700000000, 500)
	stub := tracetest.SpanStub{
		Name:        "GET /orders",
		SpanContext: spanContext(childID),
		Parent:      spanContext(rootID),
		SpanKind:    trace.SpanKindServer,
		StartTime:   start,
		EndTime:     start.Add(time.Millisecond),
		Attributes: []attribute.KeyValue{
			attribute.String("http.method", "GET"),
			attribute.Int("http.status_code", 503),
			attribute.Float64("ratio", 0.25),
			attribute.Bool("cached", false),
			attribute.StringSlice("tags", []string{"a", "b"}),
		},
		Events: []sdktrace.Event{{Name: "retry", Time: start, Attributes: []attribute.KeyValue{attribute.Int("attempt", 2)}}},
		Status: sdktrace.Status{Code: codes.Error, Description: "upstream unavailable"},
	}

	s := ConvertSpan(stub.Snapshot())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", s.TraceID)
	assert.Equal(t, "53995c3f42cd8ad8", s.SpanID)
	assert.Equal(t, "00f067aa0ba902b7", s.ParentSpanID)
	assert.Equal(t, 2, s.Kind)
	assert.Equal(t, "1700000000000000500", s.StartTimeUnixNano)
	assert.Equal(t, "1700000000001000500", s.EndTimeUnixNano)
	assert.Equal(t, Status{Code: StatusError, Message: "upstream unavailable"}, s.Status)

	require.Len(t, s.Attributes, 5)
	assert.Equal(t, "GET", *s.Attributes[0].Value.StringValue)
	assert.Equal(t, "503", *s.Attributes[1].Value.IntValue)
	assert.Equal(t, 0.25, *s.Attributes[2].Value.DoubleValue)
	assert.False(t, *s.Attributes[3].Value.BoolValue)
	assert.Equal(t, `["a","b"]`, *s.Attributes[4].Value.StringValue)

	require.Len(t, s.Events, 1)
	assert.Equal(t, "retry", s.Events[0].Name)
	assert.Equal(t, "2", *s.Events[0].Attributes[0].Value.IntValue)
}

func TestConvertSpan_RootHasNoParent(t *testing.T) {
	s := ConvertSpan(tracetest.SpanStub{Name: "root", SpanContext: spanContext(rootID)}.Snapshot())
	assert.Empty(t, s.ParentSpanID)
	assert.Equal(t, 1, s.Kind)

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "parentSpanId")
}

func TestConvertStatus(t *testing.T) {
	assert.Equal(t, Status{Code: StatusUnset}, ConvertStatus(sdktrace.Status{Code: codes.Unset}))
	assert.Equal(t, Status{Code: StatusOK}, ConvertStatus(sdktrace.Status{Code: codes.Ok, Description: "ignored"}))
	assert.Equal(t, Status{Code: StatusError, Message: "x"}, ConvertStatus(sdktrace.Status{Code: codes.Error, Description: "x"}))
}

func TestValue_NonFiniteDoubleBecomesString(t *testing.T) {
	v := Value(attribute.Float64Value(math.NaN()))
	require.NotNil(t, v.StringValue)
	assert.Nil(t, v.DoubleValue)
	assert.Equal(t, "NaN", *v.StringValue)

	v = Value(attribute.Float64Value(math.Inf(-1)))
	require.NotNil(t, v.StringValue)
	assert.Equal(t, "-Inf", *v.StringValue)

	v = Value(attribute.Float64Value(0.5))
	require.NotNil(t, v.DoubleValue)
	assert.Equal(t, 0.5, *v.DoubleValue)

	_, err := json.Marshal(Value(attribute.Float64Value(math.Inf(1))))
	assert.NoError(t, err)
}
