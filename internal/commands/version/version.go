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

package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tombee/beacon/internal/commands/shared"
	"github.com/tombee/beacon/sdk"
)

// VersionInfo contains version metadata
type VersionInfo struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	BuildDate  string `json:"build_date"`
	SDKVersion string `json:"sdk_version"`
	GoVersion  string `json:"go_version"`
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the CLI version, commit hash and build date, and the SDK version reported to the ingestion service.`,
		RunE:  runVersion,
	}

	return cmd
}

func runVersion(cmd *cobra.Command, args []string) error {
	v, c, b := shared.GetVersion()

	info := VersionInfo{
		Version:    v,
		Commit:     c,
		BuildDate:  b,
		SDKVersion: sdk.Version,
		GoVersion:  runtime.Version(),
	}

	if shared.GetJSON() {
		if err := shared.EmitJSON(cmd.OutOrStdout(), info); err != nil {
			return fmt.Errorf("failed to marshal version info: %w", err)
		}
		return nil
	}

	cmd.Printf("beacon version %s\n", info.Version)
	cmd.Printf("  commit:      %s\n", info.Commit)
	cmd.Printf("  build date:  %s\n", info.BuildDate)
	cmd.Printf("  sdk version: %s\n", info.SDKVersion)
	cmd.Printf("  go version:  %s\n", info.GoVersion)

	return nil
}
