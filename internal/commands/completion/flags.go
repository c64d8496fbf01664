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

package completion

import (
	"github.com/spf13/cobra"
)

// SafeCompletionWrapper runs fn and converts a panic or nil result into an
// empty completion list.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	results = []string{}
	directive = cobra.ShellCompDirectiveNoFileComp

	defer func() {
		if r := recover(); r != nil {
			results = []string{}
			directive = cobra.ShellCompDirectiveNoFileComp
		}
	}()

	results, directive = fn()
	if results == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return results, directive
}

// CompleteLevels provides completion for --level flag values.
func CompleteLevels(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		levels := []string{
			"trace\tVery fine-grained diagnostics",
			"debug\tDiagnostics",
			"info\tNormal operation",
			"warn\tSomething unexpected",
			"error\tAn operation failed",
			"fatal\tThe process cannot continue",
		}
		return levels, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteDeadLetterKinds provides completion for --kind flag values.
func CompleteDeadLetterKinds(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		kinds := []string{
			"logs\tLog entries",
			"objects\tRegistered objects",
			"spans\tTrace spans",
			"events\tFrontend events and errors",
		}
		return kinds, cobra.ShellCompDirectiveNoFileComp
	})
}
