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

package storage

import (
	"context"
	"log/slog"
	"time"
)

// Retention deletes dead letters older than MaxAge on a fixed interval.
type Retention struct {
	store    *SQLiteStore
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewRetention creates a retention loop. Zero durations select the defaults
// of 7 days and one hour.
func NewRetention(store *SQLiteStore, maxAge, interval time.Duration, logger *slog.Logger) *Retention {
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{
		store:    store,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger.With("component", "retention"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs one cleanup pass immediately, then one per interval.
func (r *Retention) Start() {
	go r.run()
}

// Stop ends the loop and waits for an in-progress pass.
func (r *Retention) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Retention) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.cleanup()
	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Retention) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := r.CleanupNow(ctx); err != nil {
		r.logger.Error("failed to clean up dead letters", "error", err)
	}
}

// CleanupNow performs one pass and returns the number of rows removed.
func (r *Retention) CleanupNow(ctx context.Context) (int64, error) {
	before := r.store.now().Add(-r.maxAge)
	deleted, err := r.store.DeleteDeadLettersOlderThan(ctx, before)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		r.logger.Info("cleaned up dead letters", "count", deleted, "before", before.Format(time.RFC3339))
	}
	return deleted, nil
}
