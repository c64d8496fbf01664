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
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// generators writes the completion script for one shell. includeDesc adds
// the help text shown next to each candidate where the shell supports it.
var generators = map[string]func(root *cobra.Command, w io.Writer, includeDesc bool) error{
	"bash": func(root *cobra.Command, w io.Writer, includeDesc bool) error {
		return root.GenBashCompletionV2(w, includeDesc)
	},
	"zsh": func(root *cobra.Command, w io.Writer, includeDesc bool) error {
		if includeDesc {
			return root.GenZshCompletion(w)
		}
		return root.GenZshCompletionNoDesc(w)
	},
	"fish": func(root *cobra.Command, w io.Writer, includeDesc bool) error {
		return root.GenFishCompletion(w, includeDesc)
	},
	"powershell": func(root *cobra.Command, w io.Writer, includeDesc bool) error {
		if includeDesc {
			return root.GenPowerShellCompletionWithDesc(w)
		}
		return root.GenPowerShellCompletion(w)
	},
}

// NewCommand creates the completion command.
func NewCommand() *cobra.Command {
	var noDescriptions bool

	cmd := &cobra.Command{
		Use:   "completion <bash|zsh|fish|powershell>",
		Short: "Generate shell completion scripts",
		Long: `Print a completion script for your shell.

Besides command and flag names, the script completes the values beacon
knows in advance: log levels for "send log --level" and "tail --level",
and buffer kinds for "deadletter list --kind" and "deadletter replay --kind".

Load it for the current session:
  bash        source <(beacon completion bash)
  zsh         source <(beacon completion zsh)
  fish        beacon completion fish | source
  powershell  beacon completion powershell | Out-String | Invoke-Expression

To keep it, write the output to the directory your shell loads completions
from, e.g. ~/.local/share/bash-completion/completions/beacon or
~/.config/fish/completions/beacon.fish.`,
		Example: `  beacon completion zsh > "${fpath[1]}/_beacon"
  beacon completion bash --no-descriptions > /etc/bash_completion.d/beacon`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, ok := generators[args[0]]
			if !ok {
				return fmt.Errorf("unsupported shell %q", args[0])
			}
			return gen(cmd.Root(), cmd.OutOrStdout(), !noDescriptions)
		},
	}

	cmd.Flags().BoolVar(&noDescriptions, "no-descriptions", false, "Omit value descriptions from completions")
	return cmd
}
