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

// Package errors defines the error taxonomy used by beacon.
//
// Configuration problems are returned synchronously from constructors.
// Transport and validation failures never reach producers: they are
// carried inside export results or logged as diagnostics.
package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// ValidationError represents malformed input that was rejected.
// Producers never see it; the pipeline logs it at debug level and drops the item.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrorType implements ErrorClassifier.
func (e *ValidationError) ErrorType() string { return "validation" }

// IsRetryable implements ErrorClassifier.
func (e *ValidationError) IsRetryable() bool { return false }

// ConfigError represents configuration problems.
// Use this for missing settings or out-of-range values detected at construction.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "project_name", "error_sample_rate")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config error: %s", e.Reason)
	if e.Key != "" {
		msg = fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConfigError) ErrorType() string { return "config" }

// IsRetryable implements ErrorClassifier.
func (e *ConfigError) IsRetryable() bool { return false }

// TransportError represents a failed delivery to the ingestion service.
type TransportError struct {
	// Endpoint is the URL path the request was sent to
	Endpoint string

	// StatusCode is the HTTP status code, or 0 when no response was received
	StatusCode int

	// Body is the (truncated) response body text for non-2xx responses
	Body string

	// Cause is the underlying network error, if any
	Cause error
}

// maxBodyInError bounds how much response text is copied into an error.
const maxBodyInError = 1024

// NewStatusError builds a TransportError for a non-2xx response.
func NewStatusError(endpoint string, statusCode int, body []byte) *TransportError {
	text := strings.TrimSpace(string(body))
	if len(text) > maxBodyInError {
		text = text[:maxBodyInError] + "..."
	}
	return &TransportError{Endpoint: endpoint, StatusCode: statusCode, Body: text}
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("export to %s failed: %v", e.Endpoint, e.Cause)
	}
	msg := fmt.Sprintf("export to %s failed [HTTP %d %s]", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *TransportError) ErrorType() string { return "transport" }

// IsRetryable reports whether a later attempt may succeed. Network errors,
// 408, 429 and 5xx are retryable; other 4xx responses are not.
func (e *TransportError) IsRetryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}
