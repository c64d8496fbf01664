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
	"maps"
	"strings"

	"github.com/tombee/beacon/internal/errortrack"
	"github.com/tombee/beacon/internal/session"
	beaconerrors "github.com/tombee/beacon/pkg/errors"
	"github.com/tombee/beacon/pkg/telemetry"
)

// Track enqueues a custom event in the current session.
func (c *Client) Track(name string, props map[string]any) {
	defer c.guard("track")
	if c.closed.Load() {
		return
	}
	if strings.TrimSpace(name) == "" {
		c.reject(&beaconerrors.ValidationError{Field: "name", Message: "event name is empty"})
		return
	}
	c.addEvent(telemetry.FrontendEvent{
		Type:   telemetry.EventCustom,
		Custom: &telemetry.CustomEventData{Name: name, Properties: maps.Clone(props)},
	})
}

// SetUser attaches a user id and context to every later event. An empty id
// clears both.
func (c *Client) SetUser(id string, userContext map[string]any) {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	if id == "" {
		c.userID, c.userContext = "", nil
		return
	}
	c.userID = id
	c.userContext = maps.Clone(userContext)
}

// CaptureError reports err through sampling and deduplication. It returns
// true if an error event was enqueued.
func (c *Client) CaptureError(err error) (forwarded bool) {
	defer c.guard("capture_error")
	if err == nil || c.closed.Load() {
		return false
	}
	return c.tracker.Capture(errortrack.FromError(err, errortrack.TypeManual, 1))
}

// CaptureErrorData reports an already-normalized error, such as one relayed
// from a browser.
func (c *Client) CaptureErrorData(data telemetry.ErrorData) (forwarded bool) {
	defer c.guard("capture_error")
	if c.closed.Load() {
		return false
	}
	return c.tracker.Capture(data)
}

// Recover reports a panic in progress and re-panics. Use it directly with
// defer:
//
//	defer client.Recover()
func (c *Client) Recover() {
	if r := recover(); r != nil {
		if !c.closed.Load() {
			c.tracker.Capture(errortrack.FromPanic(r, 1))
		}
		panic(r)
	}
}

// SafeGo runs fn in a new goroutine. A panic in fn is reported and
// swallowed.
func (c *Client) SafeGo(fn func()) {
	c.tracker.Go(fn)
}

// RecordReplay hands session-recording events to the replay recorder. It
// returns how many were kept; none are kept when the current session does
// not record replays.
func (c *Client) RecordReplay(events ...telemetry.ReplayEvent) int {
	defer c.guard("record_replay")
	if c.closed.Load() {
		return 0
	}
	return c.replay.Record(events...)
}

// Session returns the current session, starting one if needed, and marks
// it active.
func (c *Client) Session() session.Session {
	return c.sessions.UpdateActivity()
}

// EndSession discards the current session. The next event starts a new one.
func (c *Client) EndSession() {
	c.sessions.End()
}

// reportError is the error tracker's sink.
func (c *Client) reportError(data telemetry.ErrorData) {
	c.addEvent(telemetry.FrontendEvent{Type: telemetry.EventError, Error: &data})
}

// addEvent stamps ev with the session, user and resource and enqueues it.
// Replay chunks arrive with their session already set.
func (c *Client) addEvent(ev telemetry.FrontendEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.now()
	}
	if ev.SessionID == "" {
		ev.SessionID = c.sessions.UpdateActivity().ID
	}

	c.userMu.RLock()
	if ev.UserID == "" {
		ev.UserID = c.userID
		ev.UserContext = c.userContext
	}
	c.userMu.RUnlock()

	ev.Resource = c.resource
	c.events.Add(ev)
}
