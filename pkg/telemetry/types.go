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

// Package telemetry defines the records that flow through the beacon pipeline.
// These types are shared by the buffers, the exporters, and the public SDK.
package telemetry

import (
	"strings"
	"time"
)

// Level is the severity of a log entry.
type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// ParseLevel converts a string to a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return true
	}
	return false
}

// Resource identifies the application that produced a record. Exporters
// read it from the first element of a batch and send it once per request.
type Resource struct {
	ProjectName string `json:"project_name" yaml:"project_name"`
	SDKVersion  string `json:"sdk_version" yaml:"sdk_version"`
	CommitSHA   string `json:"commit_sha,omitempty" yaml:"commit_sha"`
	Environment string `json:"environment,omitempty" yaml:"environment"`
}

// IsZero reports whether no resource fields are set.
func (r Resource) IsZero() bool {
	return r.ProjectName == "" && r.SDKVersion == "" && r.CommitSHA == "" && r.Environment == ""
}

// Exception describes an error attached to a log entry.
type Exception struct {
	Name    string
	Message string
	Stack   string
}

// LogEntry is a single log record. It is immutable once buffered.
type LogEntry struct {
	Message   string
	Level     Level
	Timestamp time.Time

	// TraceID and SpanID come from the ambient trace context, if any.
	TraceID string
	SpanID  string

	// Source is a free-form tag naming the producer (e.g. "slog", "http").
	Source string

	File     string
	Line     int
	Function string

	Exception  *Exception
	Properties map[string]any

	Resource Resource
}

// RegisteredObject is a filtered snapshot of a domain object.
type RegisteredObject struct {
	// Name is the display name. Empty means undefined.
	Name   string
	ID     string
	Fields map[string]any

	Resource Resource
}

// EventType tags the payload carried by a FrontendEvent.
type EventType string

const (
	EventError         EventType = "error"
	EventSessionReplay EventType = "session_replay"
	EventCustom        EventType = "custom"
)

// ErrorData is a normalized error observation.
type ErrorData struct {
	Message  string `json:"message"`
	Stack    string `json:"stack,omitempty"`
	Filename string `json:"filename,omitempty"`
	Lineno   int    `json:"lineno,omitempty"`
	Colno    int    `json:"colno,omitempty"`
	Type     string `json:"type"`
}

// ReplayEvent is one serialized interaction or mutation event produced by a
// session-recording engine.
type ReplayEvent struct {
	Type      int            `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// ReplayData carries a chunk of recorded session events.
type ReplayData struct {
	Events []ReplayEvent `json:"events"`
}

// CustomEventData is an application-defined event.
type CustomEventData struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

// FrontendEvent is a tracked user-facing action. Exactly one of the data
// pointers is set, matching Type.
type FrontendEvent struct {
	Type        EventType
	Timestamp   time.Time
	SessionID   string
	UserID      string
	UserContext map[string]any

	Error  *ErrorData
	Replay *ReplayData
	Custom *CustomEventData

	Resource Resource
}

// Data returns the payload matching the event type, or nil.
func (e FrontendEvent) Data() any {
	switch e.Type {
	case EventError:
		if e.Error != nil {
			return e.Error
		}
	case EventSessionReplay:
		if e.Replay != nil {
			return e.Replay
		}
	case EventCustom:
		if e.Custom != nil {
			return e.Custom
		}
	}
	return nil
}

// ExportResult is returned by every exporter call. Failures are reported
// here rather than panicking or returning an error.
type ExportResult struct {
	Success       bool
	Err           error
	ItemsExported int
}

// Succeeded builds a successful result for n items.
func Succeeded(n int) ExportResult {
	return ExportResult{Success: true, ItemsExported: n}
}

// Failed builds a failed result wrapping err.
func Failed(err error) ExportResult {
	return ExportResult{Success: false, Err: err}
}
