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

package telemetry

import "math"

// NonFinite returns the string form of f when it is NaN or infinite.
// encoding/json rejects those values, so encoders send them as strings.
func NonFinite(f float64) (string, bool) {
	switch {
	case math.IsNaN(f):
		return "NaN", true
	case math.IsInf(f, 1):
		return "+Inf", true
	case math.IsInf(f, -1):
		return "-Inf", true
	}
	return "", false
}

// SanitizeFields returns a copy of m in which every NaN or infinite float,
// at any depth, is replaced by its string form. A map without such values
// is returned as is.
func SanitizeFields(m map[string]any) map[string]any {
	if !hasNonFinite(m) {
		return m
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = sanitize(v)
	}
	return out
}

func sanitize(v any) any {
	switch val := v.(type) {
	case float64:
		if s, ok := NonFinite(val); ok {
			return s
		}
	case float32:
		if s, ok := NonFinite(float64(val)); ok {
			return s
		}
	case map[string]any:
		return SanitizeFields(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = sanitize(e)
		}
		return out
	case []float64:
		out := make([]any, len(val))
		for i, f := range val {
			out[i] = sanitize(f)
		}
		return out
	}
	return v
}

func hasNonFinite(v any) bool {
	switch val := v.(type) {
	case float64:
		_, bad := NonFinite(val)
		return bad
	case float32:
		_, bad := NonFinite(float64(val))
		return bad
	case map[string]any:
		for _, e := range val {
			if hasNonFinite(e) {
				return true
			}
		}
	case []any:
		for _, e := range val {
			if hasNonFinite(e) {
				return true
			}
		}
	case []float64:
		for _, f := range val {
			if _, bad := NonFinite(f); bad {
				return true
			}
		}
	}
	return false
}
