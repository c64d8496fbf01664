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

// Package buffer provides the batching queue that sits in front of every
// exporter.
//
// A Batcher collects items in FIFO order and hands them to a flush function
// when the queue reaches its size limit, when the oldest item exceeds the
// maximum batch age, when the background ticker fires, on a manual Flush,
// or at Shutdown. A failed flush puts a bounded prefix of the batch back at
// the front of the queue and drops the rest. Batches that failed validation
// and batches that fail after Shutdown are dropped whole.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	beaconerrors "github.com/tombee/beacon/pkg/errors"
	"github.com/tombee/beacon/pkg/telemetry"
)

// FlushFunc converts a batch to wire format and exports it. The slice is a
// copy owned by the callee.
type FlushFunc[T any] func(ctx context.Context, batch []T) telemetry.ExportResult

// DropFunc receives the items discarded after a failed flush.
type DropFunc[T any] func(ctx context.Context, dropped []T)

// Observer receives pipeline accounting. Implementations must be safe for
// concurrent use.
type Observer interface {
	Enqueued(buffer string, n int)
	Flushed(buffer string, exported, requeued, dropped int, elapsed time.Duration)
}

// Config controls batching behaviour.
type Config struct {
	// Name identifies the buffer in diagnostics (e.g. "logs", "spans").
	Name string

	// MaxSize is the item count that triggers a flush (default: 100).
	MaxSize int

	// MaxAge triggers a flush on Add once the oldest queued item is at
	// least this old. Zero disables the age trigger.
	MaxAge time.Duration

	// FlushInterval is the background flush period. Zero or negative
	// disables the timer: flushes then happen only at the size or age
	// threshold, on Flush, or at Shutdown.
	FlushInterval time.Duration

	// ExportTimeout bounds flushes started by the timer or a threshold (default: 30s).
	ExportTimeout time.Duration

	// Logger receives diagnostics (default: slog.Default()).
	Logger *slog.Logger

	// Observer receives counts for metrics. Optional.
	Observer Observer

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Stats is a point-in-time view of a batcher's counters.
type Stats struct {
	Queued   int
	Flushes  uint64
	Failures uint64
	Exported uint64
	Requeued uint64
	Dropped  uint64
}

// Batcher is a size- and age-bounded queue with timer-driven auto-flush.
type Batcher[T any] struct {
	cfg     Config
	flushFn FlushFunc[T]
	onDrop  DropFunc[T]
	logger  *slog.Logger

	mu     sync.Mutex
	items  []T
	oldest time.Time

	// flushMu serializes exports so a requeued prefix is always ahead of
	// items added while it was in flight.
	flushMu sync.Mutex

	kick     chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  atomic.Bool
	closed   atomic.Bool
	stopOnce sync.Once

	flushes  atomic.Uint64
	failures atomic.Uint64
	exported atomic.Uint64
	requeued atomic.Uint64
	dropped  atomic.Uint64
}

// New creates a Batcher. Call Start to enable the background timer.
func New[T any](cfg Config, flush FlushFunc[T]) *Batcher[T] {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 100
	}
	if cfg.ExportTimeout <= 0 {
		cfg.ExportTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	return &Batcher[T]{
		cfg:     cfg,
		flushFn: flush,
		logger:  cfg.Logger.With("component", "buffer", "buffer", cfg.Name),
		kick:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// OnDrop registers a sink for items discarded after a failed flush. It must
// be called before the batcher is used.
func (b *Batcher[T]) OnDrop(fn DropFunc[T]) {
	b.onDrop = fn
}

// Start launches the background flush loop. It is a no-op when
// FlushInterval is not positive or the batcher was already started.
func (b *Batcher[T]) Start() {
	if b.cfg.FlushInterval <= 0 || b.closed.Load() {
		return
	}
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	go b.run()
}

func (b *Batcher[T]) run() {
	defer close(b.doneCh)

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flushWithTimeout()
		case <-b.kick:
			b.flushWithTimeout()
		case <-b.stopCh:
			return
		}
	}
}

func (b *Batcher[T]) flushWithTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.ExportTimeout)
	defer cancel()
	b.Flush(ctx)
}

// Add appends an item. It returns false once the batcher is shut down.
func (b *Batcher[T]) Add(item T) bool {
	if b.closed.Load() {
		return false
	}

	now := b.cfg.Now()

	b.mu.Lock()
	if len(b.items) == 0 {
		b.oldest = now
	}
	b.items = append(b.items, item)
	full := len(b.items) >= b.cfg.MaxSize
	stale := b.cfg.MaxAge > 0 && now.Sub(b.oldest) >= b.cfg.MaxAge
	b.mu.Unlock()

	if b.cfg.Observer != nil {
		b.cfg.Observer.Enqueued(b.cfg.Name, 1)
	}

	if full || stale {
		b.trigger()
	}
	return true
}

// trigger requests a flush. With the loop running the request is handed to
// it without blocking; otherwise the flush runs in the caller.
func (b *Batcher[T]) trigger() {
	if b.started.Load() {
		select {
		case b.kick <- struct{}{}:
		default:
		}
		return
	}
	b.flushWithTimeout()
}

// Len returns the number of queued items.
func (b *Batcher[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Flush exports everything queued at the time of the call. Items added
// while the export is in flight go to the next batch.
func (b *Batcher[T]) Flush(ctx context.Context) telemetry.ExportResult {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.items
	b.items = nil
	b.oldest = time.Time{}
	b.mu.Unlock()

	if len(batch) == 0 {
		return telemetry.Succeeded(0)
	}

	start := b.cfg.Now()
	res := b.export(ctx, slices.Clone(batch))
	elapsed := b.cfg.Now().Sub(start)
	b.flushes.Add(1)

	if res.Success {
		b.exported.Add(uint64(len(batch)))
		if b.cfg.Observer != nil {
			b.cfg.Observer.Flushed(b.cfg.Name, len(batch), 0, 0, elapsed)
		}
		return res
	}

	b.failures.Add(1)
	keep := b.requeueLimit(len(batch), res.Err)
	dropped := batch[keep:]

	b.mu.Lock()
	b.items = append(slices.Clone(batch[:keep]), b.items...)
	if keep > 0 {
		b.oldest = start
	}
	b.mu.Unlock()

	b.requeued.Add(uint64(keep))
	b.dropped.Add(uint64(len(dropped)))
	if b.cfg.Observer != nil {
		b.cfg.Observer.Flushed(b.cfg.Name, 0, keep, len(dropped), elapsed)
	}

	b.logger.Error("telemetry export failed",
		"items", len(batch),
		"requeued", keep,
		"dropped", len(dropped),
		"error", res.Err,
		"error_type", beaconerrors.Classify(res.Err),
		"retryable", beaconerrors.IsRetryable(res.Err),
	)

	if len(dropped) > 0 && b.onDrop != nil {
		b.onDrop(ctx, slices.Clone(dropped))
	}

	return res
}

// requeueLimit is min(n, MaxSize/2), never below one so a single-item
// batch survives one failed attempt. It is zero when a retry cannot help:
// the batch failed validation, or the batcher is closed and will not
// flush again.
func (b *Batcher[T]) requeueLimit(n int, err error) int {
	var invalid *beaconerrors.ValidationError
	if b.closed.Load() || errors.As(err, &invalid) {
		return 0
	}
	limit := max(b.cfg.MaxSize/2, 1)
	return min(n, limit)
}

// export calls the flush function, converting a panic into a failed result.
func (b *Batcher[T]) export(ctx context.Context, batch []T) (res telemetry.ExportResult) {
	defer func() {
		if r := recover(); r != nil {
			res = telemetry.Failed(fmt.Errorf("flush panicked: %v", r))
		}
	}()
	if b.flushFn == nil {
		return telemetry.Failed(fmt.Errorf("no flush function configured"))
	}
	return b.flushFn(ctx, batch)
}

// Shutdown stops the timer, rejects further Adds, and performs one final
// flush. It is safe to call more than once; later calls only flush.
func (b *Batcher[T]) Shutdown(ctx context.Context) telemetry.ExportResult {
	b.stopOnce.Do(func() {
		if b.started.Load() {
			close(b.stopCh)
			<-b.doneCh
		}
		b.closed.Store(true)
	})
	return b.Flush(ctx)
}

// Closed reports whether Shutdown has been called.
func (b *Batcher[T]) Closed() bool {
	return b.closed.Load()
}

// Stats returns the current counters.
func (b *Batcher[T]) Stats() Stats {
	return Stats{
		Queued:   b.Len(),
		Flushes:  b.flushes.Load(),
		Failures: b.failures.Load(),
		Exported: b.exported.Load(),
		Requeued: b.requeued.Load(),
		Dropped:  b.dropped.Load(),
	}
}
