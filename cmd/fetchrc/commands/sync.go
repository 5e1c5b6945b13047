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
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fetchrc/cmd/fetchrc/opts"
	"github.com/walteh/fetchrc/pkg/fetch"
	"github.com/walteh/fetchrc/pkg/log"
	"github.com/walteh/fetchrc/pkg/remote"
	"github.com/walteh/fetchrc/pkg/remote/github"
	"github.com/walteh/fetchrc/pkg/resource"
)

// callbackBuffer bounds how many progress callbacks queue up behind the display
const callbackBuffer = 256

// NewSyncCmd creates a new sync command
func NewSyncCmd(o *opts.RootOpts) *cobra.Command {
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Place every configured resource",
		Long: `Sync places each resource from the config.
It will:
1. Resolve github:// remotes to download urls
2. Download remote resources, falling back to the bundle when allowed
3. Place each file according to its copy policy
4. Record every placement in the manifest

Interrupting sync removes the files it placed during this run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := zerolog.Ctx(cmd.Context()).With().Str("command", "sync").Logger().WithContext(cmd.Context())

			items, err := o.Config.Items(ctx)
			if err != nil {
				return errors.Errorf("building items: %w", err)
			}

			store, err := o.OpenManifest(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			queue := fetch.NewQueue(callbackBuffer)
			fetchOpts := append(o.Config.FetchOptions(),
				fetch.WithFileSystem(o.FS),
				fetch.WithManifest(store),
				fetch.WithDispatcher(queue.Dispatch),
				fetch.WithResolver(remote.NewRegistry(github.NewFromEnv(ctx))),
			)
			fetcher := fetch.New(fetchOpts...)

			bar := newProgress(ctx, items, noProgress)
			run := fetcher.RunBatch(ctx, items, bar.update, nil)
			o.UserLogger.StartRun(ctx, log.RunOperation{
				ID:        run.ID(),
				Config:    o.Config.Location(),
				Resources: len(items),
			})

			select {
			case <-run.Done():
			case <-ctx.Done():
				run.Cancel()
			}
			runErr := run.Wait()
			queue.Close()
			bar.stop()

			kinds := kindsByDestination(items)
			for _, e := range run.Report() {
				o.UserLogger.LogEntry(ctx, e, kinds[e.Destination])
			}
			o.UserLogger.EndRun(ctx)

			if run.Cancelled() {
				o.UserLogger.Warning("sync cancelled, files placed by this run were removed")
				return nil
			}
			if runErr != nil {
				for _, err := range run.Errors() {
					zerolog.Ctx(ctx).Debug().Err(err).Msg("resource failed")
				}
				return errors.Errorf("syncing resources: %w", runErr)
			}

			o.UserLogger.Successf("placed %d resources", len(items))
			return nil
		},
	}

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "do not show a download progress bar")
	return cmd
}

func kindsByDestination(items []resource.Item) map[string]string {
	kinds := make(map[string]string, len(items))
	for _, item := range items {
		kinds[item.Destination] = item.Kind().String()
	}
	return kinds
}
