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
)

// RegisterOne records a domain-object snapshot. It returns true when the
// object was new or changed and was enqueued for export; its id is then
// visible to later logs in the same ambient scope as "{name}_id". Objects
// without an id are dropped.
func (c *Client) RegisterOne(ctx context.Context, obj Object) (changed bool) {
	defer c.guard("register_object")
	if c.closed.Load() {
		return false
	}
	reg, ok := c.registry.RegisterOne(ctx, obj)
	if !ok {
		return false
	}
	reg.Resource = c.resource
	c.objects.Add(reg)
	return true
}

// RegisterMany records one object per key, using the key as the object's
// name. It returns how many were new or changed.
func (c *Client) RegisterMany(ctx context.Context, objs map[string]Object) int {
	defer c.guard("register_object")
	if c.closed.Load() {
		return 0
	}
	regs := c.registry.RegisterMany(ctx, objs)
	for _, reg := range regs {
		reg.Resource = c.resource
		c.objects.Add(reg)
	}
	return len(regs)
}

// CheckGatekeeper returns the remote flag value for key, served from a
// TTL cache. It fails closed: lookup errors and exporters without flag
// support return false.
func (c *Client) CheckGatekeeper(ctx context.Context, key string) bool {
	defer c.guard("check_gatekeeper")
	if c.closed.Load() {
		return false
	}
	return c.gatekeeper.Check(ctx, key)
}

// ClearGatekeeper evicts key from the flag cache, or every key when key is
// empty.
func (c *Client) ClearGatekeeper(key string) {
	if key == "" {
		c.gatekeeper.ClearAll()
		return
	}
	c.gatekeeper.Clear(key)
}
