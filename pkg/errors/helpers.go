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

package errors

import (
	"errors"
	"fmt"
)

// Wrap creates a new error that wraps the given error with additional context.
// If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Classify returns the ErrorType of the first classifier in err's tree,
// or "unknown".
func Classify(err error) string {
	var c ErrorClassifier
	if errors.As(err, &c) {
		return c.ErrorType()
	}
	if err == nil {
		return ""
	}
	return "unknown"
}

// IsRetryable reports whether err is classified as retryable. Unclassified
// errors are treated as retryable so that transient failures are not lost.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var c ErrorClassifier
	if errors.As(err, &c) {
		return c.IsRetryable()
	}
	return true
}
