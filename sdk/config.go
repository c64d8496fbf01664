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
	"github.com/tombee/beacon/internal/ambient"
	"github.com/tombee/beacon/internal/config"
	"github.com/tombee/beacon/internal/registry"
)

// Version is reported as sdk_version on every request.
const Version = "0.1.0"

// Config is the client configuration. See DefaultConfig.
type Config = config.Config

// Object is a domain object passed to RegisterOne and RegisterMany.
type Object = registry.Object

// TraceContext describes an ambient scope opened by Run or Go.
type TraceContext = ambient.TraceContext

// DefaultConfig returns a configuration with every default filled in. Only
// ProjectName must be set before calling New.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads a YAML file and BEACON_* environment overrides. An empty
// path reads the environment only.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// NewTraceID returns a random 32-character hex trace id.
func NewTraceID() string {
	return ambient.GenerateTraceID()
}

// NewSpanID returns a random 16-character hex span id.
func NewSpanID() string {
	return ambient.GenerateSpanID()
}
