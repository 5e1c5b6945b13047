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


package commands

import (
	"slices"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fetchrc/cmd/fetchrc/opts"
	"github.com/walteh/fetchrc/pkg/operation"
	"github.com/walteh/fetchrc/pkg/status"
)

// NewCleanCmd creates a new clean command
func NewCleanCmd(o *opts.RootOpts) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "clean [destination...]",
		Short: "Remove files placed by fetchrc",
		Long: `Clean removes files recorded in the manifest and forgets them.
Files fetchrc did not place are never touched. With arguments only the
named destinations are removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := o.OpenManifest(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List()
			if err != nil {
				return errors.Errorf("listing manifest: %w", err)
			}

			destinations := make([]string, 0, len(entries))
			for _, e := range entries {
				if len(args) == 0 || slices.Contains(args, e.Destination) {
					destinations = append(destinations, e.Destination)
				}
			}
			if len(destinations) == 0 {
				o.UserLogger.Info("nothing to clean")
				return nil
			}

			if dryRun {
				for _, dst := range destinations {
					o.UserLogger.Infof("would remove %s", dst)
				}
				return nil
			}

			tracker := status.NewTracker(status.NewDefaultFileFormatter())
			cleanErr := operation.Clean(ctx, o.FS, tracker, destinations)

			for _, e := range tracker.List() {
				if e.Status == status.StatusDeleted {
					if err := store.Forget(ctx, e.Destination); err != nil {
						return errors.Errorf("forgetting %s: %w", e.Destination, err)
					}
				}
				o.UserLogger.LogEntry(ctx, e, "manifest")
			}

			if cleanErr != nil {
				return cleanErr
			}
			o.UserLogger.Successf("removed %d files", len(destinations))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would be removed")
	return cmd
}
