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

package errortrack

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/tombee/beacon/internal/caller"
	"github.com/tombee/beacon/pkg/httpclient"
	"github.com/tombee/beacon/pkg/telemetry"
)

// Interceptor hooks one error surface. Install stores whatever it replaces
// and Uninstall puts it back.
type Interceptor interface {
	Install(report func(telemetry.ErrorData))
	Uninstall()
}

// Install installs interceptors that report into the tracker.
func (t *Tracker) Install(interceptors ...Interceptor) {
	t.imu.Lock()
	defer t.imu.Unlock()
	for _, i := range interceptors {
		i.Install(func(data telemetry.ErrorData) { t.Capture(data) })
		t.interceptors = append(t.interceptors, i)
	}
}

// Uninstall removes every installed interceptor in reverse order.
func (t *Tracker) Uninstall() {
	t.imu.Lock()
	installed := t.interceptors
	t.interceptors = nil
	t.imu.Unlock()

	for _, i := range slices.Backward(installed) {
		i.Uninstall()
	}
}

// SlogInterceptor reports records at or above Level written through the
// default slog logger, then passes them on unchanged.
type SlogInterceptor struct {
	// Level is the minimum reported level (default: slog.LevelError).
	Level slog.Leveler

	// Next receives every record. When nil the handler of the current
	// default logger is used, except for the handler the slog package
	// starts with: it writes through the log package, which SetDefault
	// redirects back here, so a text handler on the log package's current
	// writer takes its place.
	Next slog.Handler

	mu        sync.Mutex
	previous  *slog.Logger
	logWriter io.Writer
	logFlags  int
}

func (s *SlogInterceptor) Install(report func(telemetry.ErrorData)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.previous != nil {
		return
	}

	s.previous = slog.Default()
	s.logWriter, s.logFlags = log.Writer(), log.Flags()
	next := s.Next
	if next == nil {
		next = s.previous.Handler()
		if IsBuiltinHandler(next) {
			next = slog.NewTextHandler(log.Writer(), nil)
		}
	}
	level := s.Level
	if level == nil {
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(&reportingHandler{next: next, level: level, report: report}))
}

func (s *SlogInterceptor) Uninstall() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.previous == nil {
		return
	}
	slog.SetDefault(s.previous)
	log.SetOutput(s.logWriter)
	log.SetFlags(s.logFlags)
	s.previous = nil
}

// IsBuiltinHandler reports whether h is the handler slog installs before
// any SetDefault call.
func IsBuiltinHandler(h slog.Handler) bool {
	return fmt.Sprintf("%T", h) == "*slog.defaultHandler"
}

type reportingHandler struct {
	next   slog.Handler
	level  slog.Leveler
	report func(telemetry.ErrorData)
}

func (h *reportingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level() || h.next.Enabled(ctx, level)
}

func (h *reportingHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level.Level() {
		h.report(fromRecord(r))
	}
	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *reportingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &reportingHandler{next: h.next.WithAttrs(attrs), level: h.level, report: h.report}
}

func (h *reportingHandler) WithGroup(name string) slog.Handler {
	return &reportingHandler{next: h.next.WithGroup(name), level: h.level, report: h.report}
}

func fromRecord(r slog.Record) telemetry.ErrorData {
	msg := r.Message
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "error" || a.Key == "err" {
			msg = fmt.Sprintf("%s: %v", msg, a.Value.Any())
			return false
		}
		return true
	})
	site := caller.FromPC(r.PC)
	data := telemetry.ErrorData{
		Message:  msg,
		Filename: site.File,
		Lineno:   site.Line,
		Type:     TypeLog,
	}
	if !site.IsZero() {
		data.Stack = caller.Format([]caller.Info{site})
	}
	return data
}

// TransportInterceptor reports failed requests made through Client: transport
// errors and 5xx responses.
type TransportInterceptor struct {
	// Client is the client whose transport is wrapped (default: http.DefaultClient).
	Client *http.Client

	mu        sync.Mutex
	installed bool
	previous  http.RoundTripper
}

func (ti *TransportInterceptor) Install(report func(telemetry.ErrorData)) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if ti.installed {
		return
	}
	if ti.Client == nil {
		ti.Client = http.DefaultClient
	}

	ti.previous = ti.Client.Transport
	next := ti.previous
	if next == nil {
		next = http.DefaultTransport
	}
	ti.Client.Transport = &reportingTransport{next: next, report: report}
	ti.installed = true
}

func (ti *TransportInterceptor) Uninstall() {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if !ti.installed {
		return
	}
	ti.Client.Transport = ti.previous
	ti.previous = nil
	ti.installed = false
}

type reportingTransport struct {
	next   http.RoundTripper
	report func(telemetry.ErrorData)
}

func (t *reportingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	target := httpclient.SanitizeURL(req.URL.String())
	switch {
	case err != nil:
		t.report(telemetry.ErrorData{
			Message:  fmt.Sprintf("%s %s: %v", req.Method, target, err),
			Filename: target,
			Type:     TypeResource,
		})
	case resp.StatusCode >= http.StatusInternalServerError:
		t.report(telemetry.ErrorData{
			Message:  fmt.Sprintf("%s %s: HTTP %d", req.Method, target, resp.StatusCode),
			Filename: target,
			Type:     TypeResource,
		})
	}
	return resp, err
}
