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

// Package registry decides whether a domain-object snapshot carries new
// information.
//
// Each registration is filtered down to loggable fields and hashed. The hash
// is compared with the last one seen for the same id; only new or changed
// objects are returned for export, and only those write their id into the
// ambient context under "{name}_id".
package registry

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/tombee/beacon/internal/ambient"
	"github.com/tombee/beacon/pkg/errors"
	"github.com/tombee/beacon/pkg/telemetry"
)

// MaxStringLength is the longest string field that is kept.
const MaxStringLength = 1024

// Object is a domain object to register.
type Object struct {
	// Name is the display name, e.g. "order". Optional.
	Name   string
	ID     string
	Fields map[string]any
}

// Registry caches the last checksum per object id.
type Registry struct {
	store  ambient.Store
	logger *slog.Logger

	mu        sync.Mutex
	checksums map[string]uint64
}

// New creates a Registry that writes ids into store.
func New(store ambient.Store, logger *slog.Logger) *Registry {
	if store == nil {
		store = ambient.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:     store,
		logger:    logger.With("component", "registry"),
		checksums: make(map[string]uint64),
	}
}

// RegisterOne registers obj. It returns the filtered snapshot and true when
// the object is new or changed.
func (r *Registry) RegisterOne(ctx context.Context, obj Object) (telemetry.RegisteredObject, bool) {
	if strings.TrimSpace(obj.ID) == "" {
		err := &errors.ValidationError{Field: "id", Message: "registered object requires an id"}
		r.logger.Debug("object rejected", "name", obj.Name, "error", err)
		return telemetry.RegisteredObject{}, false
	}

	fields := FilterFields(obj.Fields)
	sum := Checksum(obj.Name, obj.ID, fields)

	r.mu.Lock()
	if prev, ok := r.checksums[obj.ID]; ok && prev == sum {
		r.mu.Unlock()
		return telemetry.RegisteredObject{}, false
	}
	r.checksums[obj.ID] = sum
	r.mu.Unlock()

	r.store.Set(ctx, ContextKey(obj.Name), obj.ID)

	return telemetry.RegisteredObject{
		Name:   obj.Name,
		ID:     obj.ID,
		Fields: fields,
	}, true
}

// RegisterMany registers one object per key. The key replaces the object's
// Name. Results are ordered by key.
func (r *Registry) RegisterMany(ctx context.Context, objs map[string]Object) []telemetry.RegisteredObject {
	var out []telemetry.RegisteredObject
	for _, name := range slices.Sorted(maps.Keys(objs)) {
		obj := objs[name]
		obj.Name = name
		if reg, ok := r.RegisterOne(ctx, obj); ok {
			out = append(out, reg)
		}
	}
	return out
}

// Len returns the number of cached ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.checksums)
}

// ContextKey is the ambient key an object's id is stored under.
func ContextKey(name string) string {
	if name == "" {
		return "object_id"
	}
	return name + "_id"
}

// FilterFields keeps numbers, booleans, times (as RFC 3339 UTC strings),
// short single-line strings and nested maps filtered the same way.
func FilterFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if fv, ok := filterValue(v); ok {
			out[k] = fv
		}
	}
	return out
}

func filterValue(v any) (any, bool) {
	switch val := v.(type) {
	case bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val, true
	case float32:
		if s, ok := telemetry.NonFinite(float64(val)); ok {
			return s, true
		}
		return val, true
	case float64:
		if s, ok := telemetry.NonFinite(val); ok {
			return s, true
		}
		return val, true
	case string:
		if len(val) > MaxStringLength || strings.ContainsAny(val, "\r\n") {
			return nil, false
		}
		return val, true
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), true
	case *time.Time:
		if val == nil {
			return nil, false
		}
		return val.UTC().Format(time.RFC3339Nano), true
	case map[string]any:
		return FilterFields(val), true
	default:
		return nil, false
	}
}

// Checksum hashes name, id and fields. Map iteration order does not affect
// the result. Every string is length-prefixed so distinct field sets never
// share a byte stream.
func Checksum(name, id string, fields map[string]any) uint64 {
	d := xxhash.New()
	writeString(d, name)
	writeString(d, id)
	writeFields(d, fields)
	return d.Sum64()
}

func writeFields(d *xxhash.Digest, fields map[string]any) {
	writeLen(d, len(fields))
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		writeString(d, k)
		if nested, ok := fields[k].(map[string]any); ok {
			d.WriteString("m")
			writeFields(d, nested)
			continue
		}
		d.WriteString("v")
		writeString(d, fmt.Sprintf("%T", fields[k]))
		writeString(d, fmt.Sprintf("%v", fields[k]))
	}
}

func writeString(d *xxhash.Digest, s string) {
	writeLen(d, len(s))
	d.WriteString(s)
}

func writeLen(d *xxhash.Digest, n int) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	d.Write(buf[:])
}
