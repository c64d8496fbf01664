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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tombee/beacon/internal/ambient"
	"github.com/tombee/beacon/internal/buffer"
	"github.com/tombee/beacon/internal/config"
	"github.com/tombee/beacon/internal/errortrack"
	"github.com/tombee/beacon/internal/export"
	"github.com/tombee/beacon/internal/gatekeeper"
	beaconlog "github.com/tombee/beacon/internal/log"
	"github.com/tombee/beacon/internal/metrics"
	"github.com/tombee/beacon/internal/registry"
	"github.com/tombee/beacon/internal/replay"
	"github.com/tombee/beacon/internal/session"
	"github.com/tombee/beacon/internal/storage"
	beaconerrors "github.com/tombee/beacon/pkg/errors"
	"github.com/tombee/beacon/pkg/telemetry"
)

// Client owns the telemetry buffers and every component that feeds them.
// It is safe for concurrent use.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	rand     func() float64
	resource telemetry.Resource

	// Set by options before the components are built.
	exporter        export.Exporter
	meterProvider   metric.MeterProvider
	ambient         ambient.Store
	consoleOut      io.Writer
	httpClient      *http.Client
	sessionStore    session.Store
	sessionStoreSet bool

	logs    *buffer.Batcher[telemetry.LogEntry]
	objects *buffer.Batcher[telemetry.RegisteredObject]
	spans   *buffer.Batcher[sdktrace.ReadOnlySpan]
	events  *buffer.Batcher[telemetry.FrontendEvent]

	tracker    *errortrack.Tracker
	sessions   *session.Manager
	registry   *registry.Registry
	gatekeeper *gatekeeper.Cache
	replay     *replay.Recorder
	metrics    *metrics.Collector

	db        *storage.SQLiteStore
	retention *storage.Retention

	userMu      sync.RWMutex
	userID      string
	userContext map[string]any

	closed       atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// New validates cfg and starts a Client. Configuration problems are
// returned as *errors.ConfigError values, joined when there are several.
// cfg is copied; later changes to it have no effect.
//
// Example:
//
//	cfg := sdk.DefaultConfig()
//	cfg.ProjectName = "checkout"
//	client, err := sdk.New(cfg, sdk.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer client.Shutdown(context.Background())
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, &beaconerrors.ConfigError{Reason: "configuration is required"}
	}
	c := &Client{cfg: *cfg}
	c.cfg.ApplyDefaults()
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	c.resolveDefaults()
	if err := c.build(); err != nil {
		c.closeStorage()
		return nil, err
	}
	c.start()

	c.logger.Debug("beacon client started",
		"project", c.cfg.ProjectName,
		"exporter", c.cfg.Exporter.Type,
		"api_key", beaconlog.SanitizeAPIKey(c.cfg.APIKey),
	)
	return c, nil
}

func (c *Client) resolveDefaults() {
	if c.logger == nil {
		c.logger = beaconlog.New(&beaconlog.Config{
			Level:     c.cfg.Log.Level,
			Format:    beaconlog.Format(c.cfg.Log.Format),
			Output:    os.Stderr,
			AddSource: c.cfg.Log.AddSource,
		})
	} else if errortrack.IsBuiltinHandler(c.logger.Handler()) {
		// The built-in handler writes through the log package, which the
		// slog interceptor redirects into the tracker.
		c.logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	c.logger = beaconlog.WithComponent(c.logger, "beacon")

	if c.now == nil {
		c.now = time.Now
	}
	if c.rand == nil {
		c.rand = rand.Float64
	}
	if c.ambient == nil {
		c.ambient = ambient.New()
	}
	if c.consoleOut == nil {
		c.consoleOut = os.Stdout
	}
	c.resource = telemetry.Resource{
		ProjectName: c.cfg.ProjectName,
		SDKVersion:  Version,
		CommitSHA:   c.cfg.CommitSHA,
		Environment: c.cfg.Environment,
	}
}

func (c *Client) build() error {
	var err error

	if c.exporter == nil {
		c.exporter, err = export.New(context.Background(), export.Config{
			Type:         c.cfg.Exporter.Type,
			Endpoint:     c.cfg.Endpoint,
			APIKey:       c.cfg.APIKey,
			Resource:     c.resource,
			Compression:  c.cfg.Exporter.Compression,
			TLS:          c.cfg.Exporter.TLS,
			OTLPEndpoint: c.cfg.Exporter.OTLPEndpoint,
			OTLPInsecure: c.cfg.Exporter.OTLPInsecure,
			Headers:      c.cfg.Exporter.Headers,
			Writer:       c.consoleOut,
			Logger:       c.logger,
		})
		if err != nil {
			return &beaconerrors.ConfigError{Key: "exporter", Reason: "failed to create exporter", Cause: err}
		}
	}

	c.metrics, err = metrics.NewCollector(c.meterProvider)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	if c.cfg.Storage.Path != "" {
		c.db, err = storage.New(storage.Config{Path: c.cfg.Storage.Path, Now: c.now})
		if err != nil {
			return &beaconerrors.ConfigError{Key: "storage.path", Reason: "failed to open storage", Cause: err}
		}
	}

	if !c.sessionStoreSet {
		c.sessionStore, err = c.configuredSessionStore()
		if err != nil {
			return err
		}
	}
	c.sessions = session.NewManager(session.Config{
		InactivityTimeout: c.cfg.Session.InactivityTimeout,
		MaxSessionLength:  c.cfg.Session.MaxLength,
		ReplaySampleRate:  c.cfg.Replay.SampleRate,
		ReplayEnabled:     c.cfg.Replay.Enabled,
		Store:             c.sessionStore,
		Logger:            c.logger,
		Now:               c.now,
		Rand:              c.rand,
	})

	c.logs = newBuffer(c, storage.KindLogs, c.exporter.ExportLogs, func(b []telemetry.LogEntry) any {
		return export.EncodeLogs(b, c.resource)
	})
	c.objects = newBuffer(c, storage.KindObjects, c.exporter.ExportObjects, func(b []telemetry.RegisteredObject) any {
		return export.EncodeObjects(b, c.resource)
	})
	c.spans = newBuffer(c, storage.KindSpans, c.exporter.ExportSpans, func(b []sdktrace.ReadOnlySpan) any {
		return export.EncodeSpans(b, c.resource)
	})
	c.events = newBuffer(c, storage.KindEvents, c.exporter.ExportEvents, func(b []telemetry.FrontendEvent) any {
		return export.EncodeEvents(b, c.resource)
	})

	c.tracker = errortrack.New(errortrack.Config{
		SampleRate:   c.cfg.Errors.SampleRate,
		Window:       c.cfg.Errors.DedupWindow,
		MaxEntries:   c.cfg.Errors.MaxEntries,
		MaxPerSecond: c.cfg.Errors.MaxPerSecond,
		Observe:      c.metrics.ErrorObserved,
		Logger:       c.logger,
		Now:          c.now,
		Rand:         c.rand,
	}, c.reportError)

	c.registry = registry.New(c.ambient, c.logger)

	var checker gatekeeper.Checker
	if gc, ok := c.exporter.(export.GatekeeperChecker); ok {
		checker = gc
	}
	c.gatekeeper = gatekeeper.New(checker,
		gatekeeper.WithTTL(c.cfg.Gatekeeper.TTL),
		gatekeeper.WithClock(c.now),
		gatekeeper.WithLogger(c.logger),
	)

	privacy := replay.DefaultPrivacy()
	if c.cfg.Replay.BlockClass != "" {
		privacy.BlockClass = c.cfg.Replay.BlockClass
	}
	if c.cfg.Replay.IgnoreClass != "" {
		privacy.IgnoreClass = c.cfg.Replay.IgnoreClass
	}
	if c.cfg.Replay.MaskClass != "" {
		privacy.MaskClass = c.cfg.Replay.MaskClass
	}
	privacy.MaskAllText = c.cfg.Replay.MaskAllText
	c.replay = replay.NewRecorder(replay.Config{
		Privacy:   privacy,
		ChunkSize: c.cfg.Replay.ChunkSize,
		Logger:    c.logger,
		Now:       c.now,
	}, c.sessions, c.addEvent)

	return nil
}

func (c *Client) configuredSessionStore() (session.Store, error) {
	switch c.cfg.Session.Store {
	case config.StoreMemory:
		return nil, nil
	case config.StoreSQLite:
		return c.db.SessionStore(), nil
	default:
		fs, err := session.NewFileStore(c.cfg.Session.Path)
		if err != nil {
			return nil, &beaconerrors.ConfigError{Key: "session.path", Reason: "failed to resolve session file", Cause: err}
		}
		return fs, nil
	}
}

// newBuffer creates the batcher for one kind, wiring metrics and the
// dead-letter sink. encode renders dropped items in their wire form.
func newBuffer[T any](c *Client, kind string, flush buffer.FlushFunc[T], encode func([]T) any) *buffer.Batcher[T] {
	interval := c.cfg.Batch.FlushInterval
	if c.cfg.Batch.DisableTimers {
		interval = 0
	}
	b := buffer.New(buffer.Config{
		Name:          kind,
		MaxSize:       c.cfg.Batch.Size,
		MaxAge:        c.cfg.Batch.MaxAge,
		FlushInterval: interval,
		ExportTimeout: c.cfg.Batch.ExportTimeout,
		Logger:        c.logger,
		Observer:      c.metrics,
		Now:           c.now,
	}, flush)

	if c.db != nil && c.cfg.Storage.DeadLetter {
		b.OnDrop(func(ctx context.Context, dropped []T) {
			// The flush context may already be spent.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			err := c.db.AddDeadLetter(ctx, kind, encode(dropped), len(dropped), "requeue limit exceeded")
			if err != nil {
				c.logger.Error("failed to store dead letter", "buffer", kind, "items", len(dropped), "error", err)
			}
		})
	}
	c.metrics.TrackQueue(kind, b.Len)
	return b
}

func (c *Client) start() {
	c.logs.Start()
	c.objects.Start()
	c.spans.Start()
	c.events.Start()

	var interceptors []errortrack.Interceptor
	if c.cfg.Errors.CaptureLogs {
		interceptors = append(interceptors, &errortrack.SlogInterceptor{})
	}
	if c.cfg.Errors.CaptureHTTP {
		interceptors = append(interceptors, &errortrack.TransportInterceptor{Client: c.httpClient})
	}
	c.tracker.Install(interceptors...)

	if c.db != nil && c.cfg.Storage.DeadLetter {
		c.retention = storage.NewRetention(c.db, c.cfg.Storage.Retention, 0, c.logger)
		c.retention.Start()
	}
}

// Flush exports everything queued in every buffer. Pending replay events
// are emitted as a final chunk first. Failed buffers keep their requeued
// prefix and their errors are joined.
func (c *Client) Flush(ctx context.Context) error {
	if !c.closed.Load() {
		c.replay.Flush()
	}
	return c.eachBuffer(ctx, func(ctx context.Context, b flusher) telemetry.ExportResult {
		return b.Flush(ctx)
	})
}

// Shutdown stops intake, restores the intercepted slog default and HTTP
// transport, flushes each buffer one last time after stopping its timer,
// then shuts down the exporter and closes local storage. Later calls
// return the first result.
func (c *Client) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		c.shutdownErr = c.shutdown(ctx)
	})
	return c.shutdownErr
}

func (c *Client) shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Batch.ShutdownTimeout)
		defer cancel()
	}

	c.closed.Store(true)
	c.tracker.Uninstall()
	c.replay.Flush()

	var errs []error
	if err := c.eachBuffer(ctx, func(ctx context.Context, b flusher) telemetry.ExportResult {
		return b.Shutdown(ctx)
	}); err != nil {
		errs = append(errs, err)
	}
	if err := c.exporter.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown exporter: %w", err))
	}
	if err := c.closeStorage(); err != nil {
		errs = append(errs, err)
	}

	c.logger.Debug("beacon client stopped")
	return errors.Join(errs...)
}

func (c *Client) closeStorage() error {
	if c.retention != nil {
		c.retention.Stop()
		c.retention = nil
	}
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	return nil
}

type flusher interface {
	Flush(ctx context.Context) telemetry.ExportResult
	Shutdown(ctx context.Context) telemetry.ExportResult
}

// eachBuffer runs fn on all four buffers concurrently.
func (c *Client) eachBuffer(ctx context.Context, fn func(context.Context, flusher) telemetry.ExportResult) error {
	buffers := []struct {
		name string
		b    flusher
	}{
		{storage.KindLogs, c.logs},
		{storage.KindObjects, c.objects},
		{storage.KindSpans, c.spans},
		{storage.KindEvents, c.events},
	}

	errs := make([]error, len(buffers))
	var g errgroup.Group
	for i, entry := range buffers {
		g.Go(func() error {
			if res := fn(ctx, entry.b); !res.Success {
				errs[i] = fmt.Errorf("flush %s: %w", entry.name, res.Err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Closed reports whether Shutdown has been called.
func (c *Client) Closed() bool {
	return c.closed.Load()
}

// Stats returns the counters of each buffer keyed by kind.
func (c *Client) Stats() map[string]buffer.Stats {
	return map[string]buffer.Stats{
		storage.KindLogs:    c.logs.Stats(),
		storage.KindObjects: c.objects.Stats(),
		storage.KindSpans:   c.spans.Stats(),
		storage.KindEvents:  c.events.Stats(),
	}
}

// guard keeps a producer call from panicking into the application.
func (c *Client) guard(op string) {
	if r := recover(); r != nil {
		c.logger.Error("telemetry call panicked", "operation", op, "panic", r)
	}
}

// reject logs a dropped producer input.
func (c *Client) reject(err *beaconerrors.ValidationError) {
	c.logger.Debug("telemetry input rejected", beaconlog.Error(err))
}
