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

// Package gatekeeper caches remote boolean flag lookups.
package gatekeeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a looked-up value is served from cache.
const DefaultTTL = 60 * time.Second

// DefaultLookupTimeout bounds one shared remote lookup.
const DefaultLookupTimeout = 10 * time.Second

// Checker performs the remote lookup.
type Checker interface {
	CheckGatekeeper(ctx context.Context, key string) (bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, key string) (bool, error)

func (f CheckerFunc) CheckGatekeeper(ctx context.Context, key string) (bool, error) {
	return f(ctx, key)
}

type entry struct {
	value     bool
	fetchedAt time.Time
}

// Cache serves flag values with a TTL. Lookups fail closed.
type Cache struct {
	checker Checker
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLookupTimeout overrides DefaultLookupTimeout.
func WithLookupTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a Cache backed by checker.
func New(checker Checker, opts ...Option) *Cache {
	c := &Cache{
		checker: checker,
		ttl:     DefaultTTL,
		timeout: DefaultLookupTimeout,
		now:     time.Now,
		logger:  slog.Default(),
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "gatekeeper")
	return c
}

// Check returns the flag value for key. A cached value younger than the TTL
// is returned without a lookup. Lookup failures return false and are not
// cached. Concurrent lookups of one key share a single request, which is
// detached from any one caller's cancellation; a caller whose ctx ends
// first gets false while the lookup continues for the others.
func (c *Cache) Check(ctx context.Context, key string) bool {
	if v, ok := c.cached(key); ok {
		return v
	}
	if c.checker == nil {
		return false
	}

	lookupCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.cached(key); ok {
			return v, nil
		}
		lctx, cancel := context.WithTimeout(lookupCtx, c.timeout)
		defer cancel()
		value, err := c.checker.CheckGatekeeper(lctx, key)
		if err != nil {
			return false, err
		}
		c.mu.Lock()
		c.entries[key] = entry{value: value, fetchedAt: c.now()}
		c.mu.Unlock()
		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			c.logger.Debug("gatekeeper check failed", "key", key, "error", res.Err)
			return false
		}
		return res.Val.(bool)
	case <-ctx.Done():
		c.logger.Debug("gatekeeper check abandoned", "key", key, "error", ctx.Err())
		return false
	}
}

func (c *Cache) cached(key string) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		return false, false
	}
	return e.value, true
}

// Clear evicts one key.
func (c *Cache) Clear(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// ClearAll evicts every key.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}
