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

// Package cli builds procd's cobra command tree: run, validate and
// version.
package cli

import (
	"github.com/spf13/cobra"
)

// BuildInfo carries version metadata injected by main via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var configPath string

// NewRootCommand creates the root command shared by every subcommand. Its
// only persistent flag is --config; each subcommand reads configPath
// itself rather than threading it through cobra's context.
func NewRootCommand(info BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "procd",
		Short:         "procd is a process-zero-style service supervisor",
		Long:          `procd loads a declarative service catalog, prepares activation sockets, and starts and restarts workers according to a per-service policy.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "/etc/procd/procd.yaml", "path to procd's own daemon configuration")

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newVersionCommand(info))
	return cmd
}
