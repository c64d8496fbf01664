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
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tombee/beacon/internal/spanconv"
	"github.com/tombee/beacon/pkg/telemetry"
)

// Metadata is sent once per request instead of once per item.
type Metadata struct {
	ProjectName string `json:"project_name"`
	SDKVersion  string `json:"sdk_version"`
	CommitSHA   string `json:"commit_sha,omitempty"`
	Environment string `json:"environment,omitempty"`
}

func metadataFrom(r telemetry.Resource) Metadata {
	return Metadata{
		ProjectName: r.ProjectName,
		SDKVersion:  r.SDKVersion,
		CommitSHA:   r.CommitSHA,
		Environment: r.Environment,
	}
}

// LogWire is the compact log encoding.
type LogWire struct {
	Msg   string         `json:"msg"`
	Lvl   string         `json:"lvl"`
	Ts    int64          `json:"ts"`
	Fl    string         `json:"fl,omitempty"`
	Ln    int            `json:"ln,omitempty"`
	Tb    string         `json:"tb,omitempty"`
	Src   string         `json:"src,omitempty"`
	Props map[string]any `json:"props,omitempty"`
	Tid   string         `json:"tid,omitempty"`
	Sid   string         `json:"sid,omitempty"`
	Exv   string         `json:"exv,omitempty"`
	Ext   string         `json:"ext,omitempty"`
	Fn    string         `json:"fn,omitempty"`
}

// LogsBody is the logs request body.
type LogsBody struct {
	Logs []LogWire `json:"logs"`
	Metadata
}

// ObjectWire is one registered object.
type ObjectWire struct {
	Name   string         `json:"name,omitempty"`
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// ObjectsBody is the objects request body.
type ObjectsBody struct {
	Objects []ObjectWire `json:"objects"`
	Metadata
}

// SpansBody is the spans request body.
type SpansBody struct {
	spanconv.Request
	Metadata
}

// EventWire is one frontend event.
type EventWire struct {
	Type        string         `json:"type"`
	Ts          int64          `json:"ts"`
	SessionID   string         `json:"sid,omitempty"`
	UserID      string         `json:"uid,omitempty"`
	UserContext map[string]any `json:"uctx,omitempty"`
	Data        any            `json:"data"`
}

// EventsBody is the events request body.
type EventsBody struct {
	Events []EventWire `json:"events"`
	Metadata
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// EncodeLog maps a LogEntry to its wire form.
func EncodeLog(e telemetry.LogEntry) LogWire {
	w := LogWire{
		Msg:   e.Message,
		Lvl:   string(e.Level),
		Ts:    millis(e.Timestamp),
		Fl:    e.File,
		Ln:    e.Line,
		Src:   e.Source,
		Props: telemetry.SanitizeFields(e.Properties),
		Tid:   e.TraceID,
		Sid:   e.SpanID,
		Fn:    e.Function,
	}
	if len(w.Props) == 0 {
		w.Props = nil
	}
	if e.Exception != nil {
		w.Exv = e.Exception.Message
		w.Ext = e.Exception.Name
		w.Tb = e.Exception.Stack
	}
	return w
}

// EncodeLogs builds the logs body. fallback is used when the first entry
// carries no resource.
func EncodeLogs(batch []telemetry.LogEntry, fallback telemetry.Resource) LogsBody {
	body := LogsBody{Logs: make([]LogWire, 0, len(batch)), Metadata: metadataFrom(fallback)}
	if len(batch) > 0 && !batch[0].Resource.IsZero() {
		body.Metadata = metadataFrom(batch[0].Resource)
	}
	for _, e := range batch {
		body.Logs = append(body.Logs, EncodeLog(e))
	}
	return body
}

// EncodeObjects builds the objects body.
func EncodeObjects(batch []telemetry.RegisteredObject, fallback telemetry.Resource) ObjectsBody {
	body := ObjectsBody{Objects: make([]ObjectWire, 0, len(batch)), Metadata: metadataFrom(fallback)}
	if len(batch) > 0 && !batch[0].Resource.IsZero() {
		body.Metadata = metadataFrom(batch[0].Resource)
	}
	for _, o := range batch {
		fields := telemetry.SanitizeFields(o.Fields)
		if fields == nil {
			fields = map[string]any{}
		}
		body.Objects = append(body.Objects, ObjectWire{Name: o.Name, ID: o.ID, Fields: fields})
	}
	return body
}

// EncodeSpans builds the spans body. Span records carry no beacon
// resource, so metadata always comes from r.
func EncodeSpans(batch []sdktrace.ReadOnlySpan, r telemetry.Resource) SpansBody {
	return SpansBody{Request: spanconv.Convert(batch), Metadata: metadataFrom(r)}
}

// EncodeEvents builds the events body.
func EncodeEvents(batch []telemetry.FrontendEvent, fallback telemetry.Resource) EventsBody {
	body := EventsBody{Events: make([]EventWire, 0, len(batch)), Metadata: metadataFrom(fallback)}
	if len(batch) > 0 && !batch[0].Resource.IsZero() {
		body.Metadata = metadataFrom(batch[0].Resource)
	}
	for _, ev := range batch {
		body.Events = append(body.Events, EventWire{
			Type:        string(ev.Type),
			Ts:          millis(ev.Timestamp),
			SessionID:   ev.SessionID,
			UserID:      ev.UserID,
			UserContext: telemetry.SanitizeFields(ev.UserContext),
			Data:        eventData(ev),
		})
	}
	return body
}

// eventData returns the event payload with non-finite floats replaced.
func eventData(ev telemetry.FrontendEvent) any {
	switch {
	case ev.Type == telemetry.EventCustom && ev.Custom != nil:
		custom := *ev.Custom
		custom.Properties = telemetry.SanitizeFields(custom.Properties)
		return &custom
	case ev.Type == telemetry.EventSessionReplay && ev.Replay != nil:
		replay := telemetry.ReplayData{Events: make([]telemetry.ReplayEvent, len(ev.Replay.Events))}
		for i, re := range ev.Replay.Events {
			re.Data = telemetry.SanitizeFields(re.Data)
			replay.Events[i] = re
		}
		return &replay
	}
	return ev.Data()
}
