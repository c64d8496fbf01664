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

package httpclient

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"
)

// DefaultUserAgent identifies beacon clients to the ingestion service.
const DefaultUserAgent = "beacon-go"

// Config configures an HTTP client.
type Config struct {
	// Timeout bounds a whole request, retries included (default: 30s).
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	// Zero disables retries (default: 2).
	RetryAttempts int

	// RetryBackoff is the delay before the first retry (default: 200ms).
	RetryBackoff time.Duration

	// MaxBackoff caps the retry delay (default: 5s).
	MaxBackoff time.Duration

	// UserAgent is sent unless the request already has one. Required.
	UserAgent string

	// AllowNonIdempotentRetry enables retries for POST, PUT, PATCH and DELETE.
	AllowNonIdempotentRetry bool

	// TLS overrides the client TLS settings. MinVersion defaults to TLS 1.2.
	TLS *tls.Config

	// Logger receives one record per request (default: slog.Default()).
	Logger *slog.Logger
}

// DefaultConfig returns a Config with the defaults used by the exporters.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		RetryAttempts: 2,
		RetryBackoff:  200 * time.Millisecond,
		MaxBackoff:    5 * time.Second,
		UserAgent:     DefaultUserAgent,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %v", c.Timeout)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must be >= 0, got %d", c.RetryAttempts)
	}
	if c.RetryAttempts > 0 {
		if c.RetryBackoff <= 0 {
			return fmt.Errorf("retry_backoff must be > 0 when retry_attempts > 0, got %v", c.RetryBackoff)
		}
		if c.MaxBackoff < c.RetryBackoff {
			return fmt.Errorf("max_backoff (%v) must be >= retry_backoff (%v)", c.MaxBackoff, c.RetryBackoff)
		}
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required")
	}
	return nil
}
