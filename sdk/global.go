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
	"fmt"
	"sync"
)

var (
	globalMu sync.Mutex
	global   *Client
)

// Init creates the process-wide Client. It fails if one is already
// installed; call Close first to replace it.
func Init(cfg *Config, opts ...Option) (*Client, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global != nil {
		return nil, fmt.Errorf("beacon client already initialized")
	}
	c, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	global = c
	return c, nil
}

// Default returns the process-wide Client, or nil before Init.
func Default() *Client {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global
}

// Close shuts down and removes the process-wide Client. It is safe to call
// without Init and more than once.
func Close(ctx context.Context) error {
	globalMu.Lock()
	c := global
	global = nil
	globalMu.Unlock()

	if c == nil {
		return nil
	}
	return c.Shutdown(ctx)
}
