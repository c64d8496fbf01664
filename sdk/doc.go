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

// Package sdk is the beacon telemetry client.
//
// A Client collects logs, errors, custom events, domain-object snapshots,
// session replays and OpenTelemetry spans, batches them per kind and hands
// each batch to a single exporter. Producer calls never block on the
// network and never panic; export failures are retried once within a
// bounded requeue and reported as diagnostics on the client's own logger.
//
// # Quick Start
//
//	cfg := sdk.DefaultConfig()
//	cfg.ProjectName = "checkout"
//	cfg.APIKey = os.Getenv("BEACON_API_KEY")
//
//	client, err := sdk.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Shutdown(context.Background())
//
//	client.Log(ctx, telemetry.LevelInfo, "order placed", map[string]any{"total": 42.5})
//	client.RegisterOne(ctx, sdk.Object{Name: "order", ID: order.ID, Fields: order.Fields()})
//
// Without an API key the client writes to the console instead of failing.
//
// # Trace Context
//
// Run and Go open an ambient scope whose trace id, span id and extra keys
// are attached to every log written inside it:
//
//	err := client.Run(ctx, sdk.TraceContext{TraceID: sdk.NewTraceID()}, func(ctx context.Context) error {
//		client.Log(ctx, telemetry.LevelInfo, "handling request", nil)
//		return nil
//	})
//
// Outside a scope the ids of an active OpenTelemetry span are used.
//
// # Integrations
//
// Handler returns a slog.Handler that forwards records into the log buffer,
// and SpanProcessor returns an sdktrace.SpanProcessor for a TracerProvider:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(client.SpanProcessor()))
//	logger := slog.New(client.Handler(nil))
//
// # Process-wide Client
//
// Init installs one Client for the process, Default returns it and Close
// shuts it down. Nothing is created implicitly.
package sdk
