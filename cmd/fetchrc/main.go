// Copyright 2025 walteh LLC
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


package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/walteh/fetchrc/cmd/fetchrc/commands"
	"github.com/walteh/fetchrc/cmd/fetchrc/opts"
	"github.com/walteh/fetchrc/pkg/fsys"
	"github.com/walteh/fetchrc/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userLogger := log.New(color.Output, zerolog.WarnLevel)
	rootOpts := &opts.RootOpts{
		UserLogger: userLogger,
		FS:         fsys.NewOS(),
	}

	rootCmd := newRootCmd(rootOpts)
	rootCmd.AddCommand(
		commands.NewSyncCmd(rootOpts),
		commands.NewStatusCmd(rootOpts),
		commands.NewCleanCmd(rootOpts),
		newVersionCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		userLogger.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(rootOpts *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetchrc",
		Short: "Place bundled and remote files where a project expects them",
		Long: `fetchrc reads a .fetchrc file listing destinations and where their
content comes from: a bundled file, a remote url, or both. It downloads what
it needs, places each file according to its copy policy, and records every
placement in a manifest.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx := setupLogging(cmd.Context())
			cmd.SetContext(ctx)

			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}
			return loadRootOpts(ctx, rootOpts)
		},
	}

	addRootFlags(cmd)
	return cmd
}
