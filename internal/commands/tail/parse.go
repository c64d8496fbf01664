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
	"fmt"
	"strings"

	"github.com/tombee/beacon/pkg/telemetry"
)

var (
	messageKeys = []string{"msg", "message"}
	levelKeys   = []string{"level", "lvl", "severity"}
	// timeKeys are dropped; the entry is stamped when it is read.
	timeKeys = []string{"time", "ts", "timestamp"}
)

// ParseLine turns one input line into a message, level and properties.
// A JSON object line is decoded field by field; anything else is the
// message itself at fallback level. Blank lines yield an empty message.
func ParseLine(line string, fallback telemetry.Level) (string, telemetry.Level, map[string]any) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", fallback, nil
	}
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed, fallback, nil
	}

	var fields map[string]any
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return trimmed, fallback, nil
	}

	msg := takeString(fields, messageKeys)
	if msg == "" {
		return trimmed, fallback, nil
	}

	level := fallback
	if raw := takeString(fields, levelKeys); raw != "" {
		level = normalizeLevel(raw, fallback)
	}
	for _, k := range timeKeys {
		delete(fields, k)
	}
	if len(fields) == 0 {
		fields = nil
	}
	return msg, level, fields
}

// takeString removes and returns the first key of keys present in fields.
func takeString(fields map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok {
			continue
		}
		delete(fields, k)
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

func normalizeLevel(raw string, fallback telemetry.Level) telemetry.Level {
	switch strings.ToLower(raw) {
	case "trace":
		return telemetry.LevelTrace
	case "debug":
		return telemetry.LevelDebug
	case "info", "notice":
		return telemetry.LevelInfo
	case "warn", "warning":
		return telemetry.LevelWarn
	case "error", "err":
		return telemetry.LevelError
	case "fatal", "critical", "panic":
		return telemetry.LevelFatal
	}
	return fallback
}
