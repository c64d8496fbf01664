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

package tail

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tombee/beacon/pkg/telemetry"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantMsg   string
		wantLevel telemetry.Level
		wantProps map[string]any
	}{
		{
			name:      "plain text",
			line:      "  server started  ",
			wantMsg:   "server started",
			wantLevel: telemetry.LevelInfo,
		},
		{
			name:      "blank",
			line:      "   ",
			wantLevel: telemetry.LevelInfo,
		},
		{
			name:      "slog json",
			line:      `{"time":"2025-01-01T00:00:00Z","level":"ERROR","msg":"db down","attempt":3,"host":"db1"}`,
			wantMsg:   "db down",
			wantLevel: telemetry.LevelError,
			wantProps: map[string]any{"attempt": json.Number("3"), "host": "db1"},
		},
		{
			name:      "message and warning",
			line:      `{"message":"slow query","severity":"warning"}`,
			wantMsg:   "slow query",
			wantLevel: telemetry.LevelWarn,
		},
		{
			name:      "unknown level keeps fallback",
			line:      `{"msg":"hello","level":"chatty"}`,
			wantMsg:   "hello",
			wantLevel: telemetry.LevelInfo,
		},
		{
			name:      "json without message",
			line:      `{"status":200}`,
			wantMsg:   `{"status":200}`,
			wantLevel: telemetry.LevelInfo,
		},
		{
			name:      "malformed json",
			line:      `{"msg":`,
			wantMsg:   `{"msg":`,
			wantLevel: telemetry.LevelInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, level, props := ParseLine(tt.line, telemetry.LevelInfo)
			assert.Equal(t, tt.wantMsg, msg)
			assert.Equal(t, tt.wantLevel, level)
			assert.Equal(t, tt.wantProps, props)
		})
	}
}
