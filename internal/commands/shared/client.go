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
	"fmt"
	"log/slog"
	"os"

	"github.com/tombee/beacon/internal/config"
	beaconlog "github.com/tombee/beacon/internal/log"
	"github.com/tombee/beacon/sdk"
)

// Logger builds the CLI's diagnostic logger on stderr. --verbose selects
// debug and --quiet selects error; otherwise LOG_LEVEL and friends apply
// with warn as the floor for interactive use.
func Logger() *slog.Logger {
	cfg := beaconlog.FromEnv()
	if os.Getenv("LOG_FORMAT") == "" {
		cfg.Format = beaconlog.FormatAuto
	}
	switch {
	case GetVerbose():
		cfg.Level = "debug"
	case GetQuiet():
		cfg.Level = "error"
	case cfg.Level == "info":
		cfg.Level = "warn"
	}
	return beaconlog.New(cfg)
}

// NewClient starts an SDK client for a CLI command. The CLI never installs
// the slog or HTTP interceptors.
func NewClient(cfg *config.Config, opts ...sdk.Option) (*sdk.Client, error) {
	cfg.Errors.CaptureLogs = false
	cfg.Errors.CaptureHTTP = false

	opts = append([]sdk.Option{sdk.WithLogger(Logger())}, opts...)
	client, err := sdk.New(cfg, opts...)
	if err != nil {
		return nil, NewConfigError("failed to start client", err)
	}
	return client, nil
}

// RequireAPIKey fails unless cfg can reach the ingestion service.
func RequireAPIKey(cfg *config.Config) error {
	if cfg.APIKey == "" {
		return NewConfigError("an API key is required", fmt.Errorf("set api_key in the config file or BEACON_API_KEY"))
	}
	return nil
}
