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
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Run calls fn inside a new ambient scope. tc's non-empty fields shadow the
// enclosing scope for the duration of fn only.
func (c *Client) Run(ctx context.Context, tc TraceContext, fn func(context.Context) error) error {
	return c.ambient.Run(ctx, tc, fn)
}

// Go calls fn in a new goroutine inside a new ambient scope. The channel
// receives fn's error, or an error describing a panic.
func (c *Client) Go(ctx context.Context, tc TraceContext, fn func(context.Context) error) <-chan error {
	return c.ambient.Go(ctx, tc, fn)
}

// Get returns key from the active ambient scope, or def.
func (c *Client) Get(ctx context.Context, key string, def any) any {
	return c.ambient.Get(ctx, key, def)
}

// Set writes key into the active ambient scope. It is a no-op outside one.
func (c *Client) Set(ctx context.Context, key string, value any) {
	c.ambient.Set(ctx, key, value)
}

// SpanProcessor returns a processor that buffers sampled spans as they end.
// Register it on a TracerProvider; the client, not the provider, owns the
// buffer's lifecycle.
func (c *Client) SpanProcessor() sdktrace.SpanProcessor {
	return &spanProcessor{client: c}
}

type spanProcessor struct {
	client *Client
}

var _ sdktrace.SpanProcessor = (*spanProcessor)(nil)

func (p *spanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *spanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	defer p.client.guard("span")
	if p.client.closed.Load() || !s.SpanContext().IsSampled() {
		return
	}
	p.client.spans.Add(s)
}

func (p *spanProcessor) Shutdown(context.Context) error {
	return nil
}

func (p *spanProcessor) ForceFlush(ctx context.Context) error {
	if res := p.client.spans.Flush(ctx); !res.Success {
		return res.Err
	}
	return nil
}
