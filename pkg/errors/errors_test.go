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

package errors_test

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	beaconerrors "github.com/tombee/beacon/pkg/errors"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *beaconerrors.ValidationError
		wantMsg string
	}{
		{
			name:    "with field",
			err:     &beaconerrors.ValidationError{Field: "id", Message: "object id is required"},
			wantMsg: "validation failed on id: object id is required",
		},
		{
			name:    "without field",
			err:     &beaconerrors.ValidationError{Message: "empty message"},
			wantMsg: "validation failed: empty message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &beaconerrors.ConfigError{Key: "project_name", Reason: "is required", Cause: cause}

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "config error at project_name: is required: boom", err.Error())

	var cfgErr *beaconerrors.ConfigError
	wrapped := fmt.Errorf("init: %w", err)
	assert.True(t, errors.As(wrapped, &cfgErr))
	assert.Equal(t, "project_name", cfgErr.Key)
}

func TestTransportError_IncludesBody(t *testing.T) {
	err := beaconerrors.NewStatusError("/api/v1/logs", http.StatusBadRequest, []byte("  invalid api key \n"))

	assert.Contains(t, err.Error(), "HTTP 400")
	assert.Contains(t, err.Error(), "invalid api key")
	assert.False(t, err.IsRetryable())
}

func TestTransportError_TruncatesLongBody(t *testing.T) {
	err := beaconerrors.NewStatusError("/api/v1/logs", http.StatusInternalServerError, []byte(strings.Repeat("x", 5000)))

	assert.Less(t, len(err.Body), 1100)
	assert.True(t, strings.HasSuffix(err.Body, "..."))
}

func TestTransportError_IsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true},
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := &beaconerrors.TransportError{Endpoint: "/x", StatusCode: tt.status, Cause: errors.New("dial")}
			assert.Equal(t, tt.want, err.IsRetryable())
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "", beaconerrors.Classify(nil))
	assert.Equal(t, "unknown", beaconerrors.Classify(errors.New("x")))
	assert.Equal(t, "transport", beaconerrors.Classify(fmt.Errorf("w: %w", &beaconerrors.TransportError{})))
	assert.Equal(t, "config", beaconerrors.Classify(&beaconerrors.ConfigError{}))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, beaconerrors.IsRetryable(nil))
	assert.True(t, beaconerrors.IsRetryable(errors.New("connection reset")))
	assert.False(t, beaconerrors.IsRetryable(&beaconerrors.ValidationError{Message: "bad"}))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, beaconerrors.Wrap(nil, "ctx"))
	err := beaconerrors.Wrap(errors.New("inner"), "outer")
	assert.Equal(t, "outer: inner", err.Error())
}
