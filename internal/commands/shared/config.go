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

package shared

import (
	"errors"
	"io/fs"
	"os"

	"github.com/tombee/beacon/internal/config"
)

// LoadConfig loads the file named by --config, or the default config file
// when it exists, then applies BEACON_* environment overrides. With
// validate unset the configuration may be incomplete.
func LoadConfig(validate bool) (*config.Config, error) {
	path := GetConfigPath()
	if path == "" {
		if p, err := config.ConfigPath(); err == nil {
			if _, err := os.Stat(p); err == nil {
				path = p
			} else if !errors.Is(err, fs.ErrNotExist) {
				return nil, NewConfigError("failed to read config file", err)
			}
		}
	}

	cfg, err := config.Read(path)
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, NewConfigError("invalid configuration", err)
		}
	}
	return cfg, nil
}
