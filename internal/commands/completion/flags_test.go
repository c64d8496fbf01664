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
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func completionNames(completions []string) map[string]bool {
	names := make(map[string]bool, len(completions))
	for _, comp := range completions {
		names[strings.Split(comp, "\t")[0]] = true
	}
	return names
}

func TestCompleteLevels(t *testing.T) {
	completions, directive := CompleteLevels(nil, nil, "")

	if len(completions) != 6 {
		t.Errorf("expected 6 levels, got %d", len(completions))
	}
	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("expected ShellCompDirectiveNoFileComp, got %v", directive)
	}

	names := completionNames(completions)
	for _, level := range []string{"trace", "debug", "info", "warn", "error", "fatal"} {
		if !names[level] {
			t.Errorf("expected level %q not found", level)
		}
	}
}

func TestCompleteDeadLetterKinds(t *testing.T) {
	completions, _ := CompleteDeadLetterKinds(nil, nil, "")

	names := completionNames(completions)
	for _, kind := range []string{"logs", "objects", "spans", "events"} {
		if !names[kind] {
			t.Errorf("expected kind %q not found", kind)
		}
	}
}

func TestSafeCompletionWrapper(t *testing.T) {
	t.Run("panic", func(t *testing.T) {
		results, directive := SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
			panic("boom")
		})
		if len(results) != 0 {
			t.Errorf("expected empty results after panic, got %v", results)
		}
		if directive != cobra.ShellCompDirectiveNoFileComp {
			t.Errorf("expected ShellCompDirectiveNoFileComp, got %v", directive)
		}
	})

	t.Run("nil results", func(t *testing.T) {
		results, _ := SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		})
		if results == nil || len(results) != 0 {
			t.Errorf("expected empty non-nil results, got %v", results)
		}
	})
}

func TestCompletionCommand(t *testing.T) {
	root := &cobra.Command{Use: "beacon"}
	root.AddCommand(NewCommand())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"completion", "bash"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "beacon") {
		t.Errorf("bash completion does not mention beacon")
	}

	root.SetArgs([]string{"completion", "tcsh"})
	if err := root.Execute(); err == nil {
		t.Error("expected error for unsupported shell")
	}
}

func TestCompletionCommandShells(t *testing.T) {
	tests := []struct {
		args     []string
		contains string
	}{
		{args: []string{"bash"}, contains: "__complete"},
		{args: []string{"zsh"}, contains: "#compdef beacon"},
		{args: []string{"fish"}, contains: "__complete"},
		{args: []string{"fish", "--no-descriptions"}, contains: "__completeNoDesc"},
		{args: []string{"zsh", "--no-descriptions"}, contains: "__completeNoDesc"},
		{args: []string{"powershell"}, contains: "Register-ArgumentCompleter"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			root := &cobra.Command{Use: "beacon"}
			root.AddCommand(NewCommand())

			var out bytes.Buffer
			root.SetOut(&out)
			root.SetArgs(append([]string{"completion"}, tt.args...))
			if err := root.Execute(); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if !strings.Contains(out.String(), tt.contains) {
				t.Errorf("script for %v does not contain %q", tt.args, tt.contains)
			}
		})
	}
}
