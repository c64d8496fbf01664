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

// Package replay buffers session-recording output and applies the privacy
// rules before it leaves the process.
//
// The recording engine itself is external. It hands already-serialized
// events to a Recorder, which drops them unless the current session was
// sampled for replay, filters them, and emits them in chunks as
// session_replay events.
package replay

import (
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/tombee/beacon/internal/session"
	"github.com/tombee/beacon/pkg/telemetry"
)

// Default CSS class names recognised by the privacy filter.
const (
	DefaultBlockClass  = "beacon-block"
	DefaultIgnoreClass = "beacon-ignore"
	DefaultMaskClass   = "beacon-mask"
)

// Privacy names the classes that control what is recorded. A node carrying
// BlockClass is replaced by a placeholder, events targeting IgnoreClass are
// dropped, and text under MaskClass is masked.
type Privacy struct {
	BlockClass  string
	IgnoreClass string
	MaskClass   string

	// MaskAllText masks every text and input value.
	MaskAllText bool
}

// DefaultPrivacy returns the default class names.
func DefaultPrivacy() Privacy {
	return Privacy{
		BlockClass:  DefaultBlockClass,
		IgnoreClass: DefaultIgnoreClass,
		MaskClass:   DefaultMaskClass,
	}
}

// Sink receives completed replay chunks.
type Sink func(telemetry.FrontendEvent)

// Config controls a Recorder.
type Config struct {
	Privacy Privacy

	// ChunkSize is the number of events per emitted chunk (default: 50).
	ChunkSize int

	Logger *slog.Logger
	Now    func() time.Time
}

// Recorder gates, filters and chunks replay events.
type Recorder struct {
	cfg      Config
	sessions *session.Manager
	sink     Sink
	logger   *slog.Logger

	mu        sync.Mutex
	sessionID string
	pending   []telemetry.ReplayEvent
}

// NewRecorder creates a Recorder bound to a session manager.
func NewRecorder(cfg Config, sessions *session.Manager, sink Sink) *Recorder {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 50
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Recorder{
		cfg:      cfg,
		sessions: sessions,
		sink:     sink,
		logger:   cfg.Logger.With("component", "replay"),
	}
}

// Record accepts events from the recording engine and returns how many were
// kept. Events are discarded when the session does not record replays.
func (r *Recorder) Record(events ...telemetry.ReplayEvent) int {
	if len(events) == 0 {
		return 0
	}

	sess := r.sessions.UpdateActivity()
	if !sess.HasReplay {
		return 0
	}

	kept := make([]telemetry.ReplayEvent, 0, len(events))
	for _, ev := range events {
		if filtered, ok := r.cfg.Privacy.Apply(ev); ok {
			kept = append(kept, filtered)
		}
	}

	r.mu.Lock()
	var out []telemetry.FrontendEvent
	if r.sessionID != "" && r.sessionID != sess.ID {
		// The session rolled over; what is pending belongs to the old one.
		out = append(out, r.chunkLocked())
	}
	r.sessionID = sess.ID
	r.pending = append(r.pending, kept...)
	for len(r.pending) >= r.cfg.ChunkSize {
		out = append(out, r.takeLocked(r.cfg.ChunkSize))
	}
	r.mu.Unlock()

	r.emit(out)
	return len(kept)
}

// Flush emits whatever is pending.
func (r *Recorder) Flush() {
	r.mu.Lock()
	var out []telemetry.FrontendEvent
	if len(r.pending) > 0 {
		out = append(out, r.chunkLocked())
	}
	r.mu.Unlock()
	r.emit(out)
}

// Pending returns the number of buffered events.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Recorder) chunkLocked() telemetry.FrontendEvent {
	return r.takeLocked(len(r.pending))
}

func (r *Recorder) takeLocked(n int) telemetry.FrontendEvent {
	events := make([]telemetry.ReplayEvent, n)
	copy(events, r.pending[:n])
	r.pending = r.pending[n:]
	if len(r.pending) == 0 {
		r.pending = nil
	}
	return telemetry.FrontendEvent{
		Type:      telemetry.EventSessionReplay,
		Timestamp: r.cfg.Now(),
		SessionID: r.sessionID,
		Replay:    &telemetry.ReplayData{Events: events},
	}
}

func (r *Recorder) emit(chunks []telemetry.FrontendEvent) {
	if r.sink == nil {
		return
	}
	for _, c := range chunks {
		if len(c.Replay.Events) == 0 {
			continue
		}
		r.logger.Debug("replay chunk ready", "session", c.SessionID, "events", len(c.Replay.Events))
		r.sink(c)
	}
}

// Apply filters one event. It returns false when the event must be dropped.
func (p Privacy) Apply(ev telemetry.ReplayEvent) (telemetry.ReplayEvent, bool) {
	if ev.Data == nil {
		return ev, true
	}
	if p.IgnoreClass != "" && hasClass(ev.Data, p.IgnoreClass) {
		return ev, false
	}
	ev.Data = p.filterMap(ev.Data, p.MaskAllText)
	return ev, true
}

func (p Privacy) filterMap(m map[string]any, masking bool) map[string]any {
	if p.BlockClass != "" && hasClass(m, p.BlockClass) {
		blocked := map[string]any{"blocked": true}
		if id, ok := m["id"]; ok {
			blocked["id"] = id
		}
		return blocked
	}
	if p.MaskClass != "" && hasClass(m, p.MaskClass) {
		masking = true
	}

	out := maps.Clone(m)
	for k, v := range out {
		switch val := v.(type) {
		case map[string]any:
			out[k] = p.filterMap(val, masking)
		case []any:
			out[k] = p.filterSlice(val, masking)
		case string:
			if masking && isTextKey(k) {
				out[k] = mask(val)
			}
		}
	}
	return out
}

func (p Privacy) filterSlice(s []any, masking bool) []any {
	out := make([]any, len(s))
	for i, v := range s {
		switch val := v.(type) {
		case map[string]any:
			out[i] = p.filterMap(val, masking)
		case []any:
			out[i] = p.filterSlice(val, masking)
		default:
			out[i] = v
		}
	}
	return out
}

// hasClass reports whether m, or its "attributes" map, has a class
// attribute containing class as a whole token.
func hasClass(m map[string]any, class string) bool {
	classes, _ := m["class"].(string)
	if attrs, ok := m["attributes"].(map[string]any); ok {
		if c, ok := attrs["class"].(string); ok {
			classes += " " + c
		}
	}
	for _, tok := range strings.Fields(classes) {
		if tok == class {
			return true
		}
	}
	return false
}

func isTextKey(k string) bool {
	switch k {
	case "text", "textContent", "value":
		return true
	}
	return false
}

func mask(s string) string {
	return strings.Repeat("*", len([]rune(s)))
}
