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

// Package errortrack turns the error surfaces of a Go process into sampled,
// deduplicated error reports.
//
// Errors arrive from panics (Recover and Go), from interceptors installed on
// the default slog logger and on HTTP transports, or from explicit Capture
// calls. Each one is kept with probability SampleRate, then suppressed if an
// error with the same fingerprint was reported within the dedup window.
package errortrack

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"

	"github.com/tombee/beacon/internal/caller"
	"github.com/tombee/beacon/pkg/telemetry"
)

// Capture outcomes passed to Config.Observe.
const (
	OutcomeSampledOut = "sampled_out"
	OutcomeSuppressed = "suppressed"
	OutcomeLimited    = "limited"
	OutcomeForwarded  = "forwarded"
)

// Error types recorded in ErrorData.Type.
const (
	TypePanic    = "panic"
	TypeLog      = "log"
	TypeResource = "resource"
	TypeManual   = "manual"
)

const (
	defaultWindow     = 30 * time.Second
	defaultMaxEntries = 100
)

// Sink receives errors that survived sampling and deduplication.
type Sink func(telemetry.ErrorData)

// Config controls sampling and deduplication.
type Config struct {
	// SampleRate is the probability, in [0, 1], that an observed error is
	// kept. It is drawn once per error.
	SampleRate float64

	// Window suppresses repeats of a fingerprint (default: 30s).
	Window time.Duration

	// MaxEntries is the dedup cache size above which stale entries are
	// pruned (default: 100).
	MaxEntries int

	// MaxPerSecond caps forwarded errors. Zero means unlimited.
	MaxPerSecond float64

	// Observe is called with the outcome of every Capture. Optional.
	Observe func(outcome string)

	Logger *slog.Logger
	Now    func() time.Time
	Rand   func() float64
}

// Tracker samples, deduplicates and forwards errors to a Sink.
type Tracker struct {
	cfg     Config
	sink    Sink
	logger  *slog.Logger
	limiter *rate.Limiter

	mu   sync.Mutex
	seen map[uint64]time.Time

	imu          sync.Mutex
	interceptors []Interceptor

	sampled    atomic.Uint64
	suppressed atomic.Uint64
	limited    atomic.Uint64
	forwarded  atomic.Uint64
}

// New creates a Tracker that forwards to sink.
func New(cfg Config, sink Sink) *Tracker {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}

	t := &Tracker{
		cfg:    cfg,
		sink:   sink,
		logger: cfg.Logger.With("component", "errortrack"),
		seen:   make(map[uint64]time.Time),
	}
	if cfg.MaxPerSecond > 0 {
		burst := max(int(cfg.MaxPerSecond), 1)
		t.limiter = rate.NewLimiter(rate.Limit(cfg.MaxPerSecond), burst)
	}
	return t
}

// Capture reports an error. It returns true if the error was forwarded.
func (t *Tracker) Capture(data telemetry.ErrorData) bool {
	if data.Type == "" {
		data.Type = TypeManual
	}
	if data.Message == "" {
		data.Message = "unknown error"
	}

	if t.cfg.Rand() >= t.cfg.SampleRate {
		t.sampled.Add(1)
		t.observe(OutcomeSampledOut)
		return false
	}

	now := t.cfg.Now()
	key := Fingerprint(data)

	t.mu.Lock()
	if last, ok := t.seen[key]; ok && now.Sub(last) < t.cfg.Window {
		t.mu.Unlock()
		t.suppressed.Add(1)
		t.observe(OutcomeSuppressed)
		return false
	}
	t.seen[key] = now
	if len(t.seen) > t.cfg.MaxEntries {
		t.pruneLocked(now)
	}
	t.mu.Unlock()

	if t.limiter != nil && !t.limiter.AllowN(now, 1) {
		t.limited.Add(1)
		t.observe(OutcomeLimited)
		t.logger.Debug("error report rate limited", "type", data.Type)
		return false
	}

	t.forwarded.Add(1)
	t.observe(OutcomeForwarded)
	if t.sink != nil {
		t.sink(data)
	}
	return true
}

func (t *Tracker) observe(outcome string) {
	if t.cfg.Observe != nil {
		t.cfg.Observe(outcome)
	}
}

// CaptureError reports err as a manual error with the caller's stack.
func (t *Tracker) CaptureError(err error) bool {
	if err == nil {
		return false
	}
	return t.Capture(FromError(err, TypeManual, 1))
}

// pruneLocked removes entries older than twice the window.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := 2 * t.cfg.Window
	for k, ts := range t.seen {
		if now.Sub(ts) > cutoff {
			delete(t.seen, k)
		}
	}
}

// Recover reports a panic in progress and re-panics. Use it directly with
// defer:
//
//	defer tracker.Recover()
func (t *Tracker) Recover() {
	if r := recover(); r != nil {
		t.Capture(FromPanic(r, 1))
		panic(r)
	}
}

// Go runs fn in a new goroutine. A panic in fn is reported and swallowed.
func (t *Tracker) Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.Capture(FromPanic(r, 1))
			}
		}()
		fn()
	}()
}

// Cached returns the number of fingerprints held for deduplication.
func (t *Tracker) Cached() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// Stats reports how many errors were sampled out, suppressed as duplicates,
// rate limited, and forwarded.
func (t *Tracker) Stats() (sampled, suppressed, limited, forwarded uint64) {
	return t.sampled.Load(), t.suppressed.Load(), t.limited.Load(), t.forwarded.Load()
}

// Fingerprint hashes type, message and the first stack line.
func Fingerprint(data telemetry.ErrorData) uint64 {
	return xxhash.Sum64String(data.Type + ":" + data.Message + ":" + caller.FirstLine(data.Stack))
}

// FromError normalizes err, recording the stack skip frames above the caller.
func FromError(err error, typ string, skip int) telemetry.ErrorData {
	return normalize(err.Error(), typ, caller.Frames(skip+1))
}

// FromPanic normalizes a recovered panic value. skip counts frames above
// the caller, which is normally the deferred function.
func FromPanic(r any, skip int) telemetry.ErrorData {
	var msg string
	switch v := r.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	default:
		msg = fmt.Sprint(v)
	}
	return normalize(msg, TypePanic, caller.Frames(skip+1))
}

func normalize(msg, typ string, frames []caller.Info) telemetry.ErrorData {
	data := telemetry.ErrorData{
		Message: msg,
		Stack:   caller.Format(frames),
		Type:    typ,
	}
	if len(frames) > 0 {
		data.Filename = frames[0].File
		data.Lineno = frames[0].Line
	}
	return data
}
