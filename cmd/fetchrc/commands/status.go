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
	"context"
	"fmt"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fetchrc/cmd/fetchrc/opts"
	"github.com/walteh/fetchrc/pkg/manifest"
)

// ErrNeedsSync is returned by status --check when any resource is not in place
var ErrNeedsSync = errors.Base("resources need to be synced")

// Row is one line of the status report
type Row struct {
	Destination string
	State       string
	Source      string
	RunID       string
}

// NewStatusCmd creates a new status command
func NewStatusCmd(o *opts.RootOpts) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check if placed files are still in place",
		Long: `Status compares the manifest with the disk and the config.
It will:
1. Verify the checksum of every recorded placement
2. Report configured resources that were never placed
3. With --check, fail when anything needs a sync`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rows, clean, err := statusRows(ctx, o)
			if err != nil {
				return err
			}

			data := pterm.TableData{{"destination", "state", "source", "run"}}
			for _, r := range rows {
				data = append(data, []string{r.Destination, r.State, r.Source, r.RunID})
			}
			table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return errors.Errorf("rendering status: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)

			if clean {
				o.UserLogger.Success("all resources are in place")
				return nil
			}
			if check {
				return errors.WithStack(ErrNeedsSync)
			}
			o.UserLogger.Warning("some resources need to be synced")
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "exit with an error when a sync is needed")
	return cmd
}

// statusRows builds the report and whether every resource is in place
func statusRows(ctx context.Context, o *opts.RootOpts) ([]Row, bool, error) {
	items, err := o.Config.Items(ctx)
	if err != nil {
		return nil, false, errors.Errorf("building items: %w", err)
	}

	store, err := o.OpenManifest(ctx)
	if err != nil {
		return nil, false, err
	}
	defer store.Close()

	entries, err := store.List()
	if err != nil {
		return nil, false, errors.Errorf("listing manifest: %w", err)
	}

	clean := true
	recorded := make(map[string]bool, len(entries))
	rows := make([]Row, 0, len(items))

	for _, c := range manifest.Verify(ctx, o.FS, entries) {
		recorded[c.Entry.Destination] = true
		if c.Health != manifest.HealthOK {
			clean = false
		}
		runID := c.Entry.RunID
		if len(runID) > 8 {
			runID = runID[:8]
		}
		rows = append(rows, Row{
			Destination: c.Entry.Destination,
			State:       c.Health.String(),
			Source:      c.Entry.Source,
			RunID:       runID,
		})
	}

	for _, item := range items {
		if recorded[item.Destination] {
			continue
		}
		// Destinations that existed before fetchrc ran are never recorded.
		exists, err := o.FS.Exists(ctx, item.Destination)
		if err != nil {
			return nil, false, err
		}
		state := "not placed"
		if exists {
			state = "unmanaged"
		} else {
			clean = false
		}
		rows = append(rows, Row{Destination: item.Destination, State: state, Source: item.Source.String()})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Destination < rows[j].Destination })
	return rows, clean, nil
}
