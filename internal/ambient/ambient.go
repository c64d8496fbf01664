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

// Package ambient propagates trace identifiers and custom keys through a
// logical operation without threading them through every call.
//
// A scope is a mutable bag of values carried by a context.Context. Run and
// Go open a child scope seeded from the parent; writes inside the child are
// never visible to the parent, and the parent's state is unchanged once the
// child returns, panics included.
package ambient

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"maps"
	"sync"
)

// Well-known keys stored in every scope.
const (
	KeyTraceID      = "traceId"
	KeySpanID       = "spanId"
	KeyParentSpanID = "parentSpanId"
	KeyTraceName    = "traceName"
)

// TraceContext is the set of values a scope is opened with.
type TraceContext struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	TraceName    string

	// Extra holds arbitrary additional keys.
	Extra map[string]any
}

// Store is the ambient context contract. ContextStore is the binding for Go;
// other bindings can be substituted where context.Context is not threaded.
type Store interface {
	// Run executes fn inside a new scope and returns its error. Panics propagate.
	Run(ctx context.Context, tc TraceContext, fn func(context.Context) error) error

	// Go executes fn in a new goroutine inside a new scope. The scope is
	// captured before Go returns. The channel receives fn's result exactly once.
	Go(ctx context.Context, tc TraceContext, fn func(context.Context) error) <-chan error

	// Get returns the value for key in the active scope, or def.
	Get(ctx context.Context, key string, def any) any

	// Set writes key in the active scope. No-op outside any scope.
	Set(ctx context.Context, key string, value any)

	// Clear removes every key of the active scope without leaving it.
	Clear(ctx context.Context)

	// Current returns the trace fields of the active scope.
	Current(ctx context.Context) (TraceContext, bool)
}

type scopeKey struct{}

type scope struct {
	mu     sync.RWMutex
	values map[string]any
}

func (s *scope) snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// ContextStore implements Store on top of context.Context values.
type ContextStore struct{}

// New returns a context-backed Store.
func New() *ContextStore {
	return &ContextStore{}
}

var _ Store = (*ContextStore)(nil)

func scopeFrom(ctx context.Context) *scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*scope)
	return s
}

// enter derives a child context holding a new scope. Parent values are
// copied, then the non-empty fields of tc shadow them.
func (c *ContextStore) enter(ctx context.Context, tc TraceContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	values := make(map[string]any)
	if parent := scopeFrom(ctx); parent != nil {
		values = parent.snapshot()
		if values == nil {
			values = make(map[string]any)
		}
	}

	set := func(key, v string) {
		if v != "" {
			values[key] = v
		}
	}
	set(KeyTraceID, tc.TraceID)
	set(KeySpanID, tc.SpanID)
	set(KeyParentSpanID, tc.ParentSpanID)
	set(KeyTraceName, tc.TraceName)
	for k, v := range tc.Extra {
		values[k] = v
	}

	return context.WithValue(ctx, scopeKey{}, &scope{values: values})
}

// Run executes fn inside a new scope.
func (c *ContextStore) Run(ctx context.Context, tc TraceContext, fn func(context.Context) error) error {
	return fn(c.enter(ctx, tc))
}

// Go executes fn asynchronously inside a new scope. A panic in fn is
// converted into an error on the returned channel.
func (c *ContextStore) Go(ctx context.Context, tc TraceContext, fn func(context.Context) error) <-chan error {
	scoped := c.enter(ctx, tc)
	done := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in ambient scope: %v", r)
			}
		}()
		done <- fn(scoped)
	}()

	return done
}

// Get returns the value for key in the active scope, or def.
func (c *ContextStore) Get(ctx context.Context, key string, def any) any {
	s := scopeFrom(ctx)
	if s == nil {
		return def
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// GetString is Get for string values.
func (c *ContextStore) GetString(ctx context.Context, key string) string {
	v, _ := c.Get(ctx, key, "").(string)
	return v
}

// Set writes key in the active scope.
func (c *ContextStore) Set(ctx context.Context, key string, value any) {
	s := scopeFrom(ctx)
	if s == nil {
		return
	}
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

// Clear empties the active scope in place.
func (c *ContextStore) Clear(ctx context.Context) {
	s := scopeFrom(ctx)
	if s == nil {
		return
	}
	s.mu.Lock()
	clear(s.values)
	s.mu.Unlock()
}

// Current returns the trace fields of the active scope. Extra holds every
// key that is not one of the well-known trace keys.
func (c *ContextStore) Current(ctx context.Context) (TraceContext, bool) {
	s := scopeFrom(ctx)
	if s == nil {
		return TraceContext{}, false
	}

	values := s.snapshot()
	str := func(key string) string {
		v, _ := values[key].(string)
		delete(values, key)
		return v
	}

	tc := TraceContext{
		TraceID:      str(KeyTraceID),
		SpanID:       str(KeySpanID),
		ParentSpanID: str(KeyParentSpanID),
		TraceName:    str(KeyTraceName),
	}
	if len(values) > 0 {
		tc.Extra = values
	}
	return tc, true
}

// RunValue is Run for functions that produce a value.
func RunValue[T any](ctx context.Context, s Store, tc TraceContext, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := s.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// GenerateTraceID returns 32 random lowercase hex characters.
func GenerateTraceID() string {
	return randomHex(16)
}

// GenerateSpanID returns 16 random lowercase hex characters.
func GenerateSpanID() string {
	return randomHex(8)
}

func randomHex(n int) string {
	b := make([]byte, n)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
