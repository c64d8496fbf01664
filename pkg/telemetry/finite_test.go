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

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonFinite(t *testing.T) {
	tests := []struct {
		in   float64
		want string
		ok   bool
	}{
		{math.NaN(), "NaN", true},
		{math.Inf(1), "+Inf", true},
		{math.Inf(-1), "-Inf", true},
		{0, "", false},
		{-1.5, "", false},
		{math.MaxFloat64, "", false},
	}
	for _, tt := range tests {
		got, ok := NonFinite(tt.in)
		assert.Equal(t, tt.ok, ok, "NonFinite(%v)", tt.in)
		assert.Equal(t, tt.want, got, "NonFinite(%v)", tt.in)
	}
}

func TestSanitizeFields(t *testing.T) {
	in := map[string]any{
		"ratio":  math.NaN(),
		"count":  3,
		"small":  float32(math.Inf(1)),
		"nested": map[string]any{"min": math.Inf(-1), "ok": 1.5},
		"list":   []any{1.0, math.NaN(), "x"},
		"floats": []float64{2, math.Inf(1)},
	}

	out := SanitizeFields(in)
	assert.Equal(t, map[string]any{
		"ratio":  "NaN",
		"count":  3,
		"small":  "+Inf",
		"nested": map[string]any{"min": "-Inf", "ok": 1.5},
		"list":   []any{1.0, "NaN", "x"},
		"floats": []any{2.0, "+Inf"},
	}, out)

	_, err := json.Marshal(out)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(in["ratio"].(float64)), "input must not be modified")
}

func TestSanitizeFields_FiniteMapReturnedAsIs(t *testing.T) {
	in := map[string]any{"a": 1.5, "b": map[string]any{"c": "d"}}
	out := SanitizeFields(in)
	out["marker"] = true
	assert.Equal(t, true, in["marker"])

	assert.Nil(t, SanitizeFields(nil))
}
