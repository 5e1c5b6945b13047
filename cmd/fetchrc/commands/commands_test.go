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
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fetchrc/cmd/fetchrc/opts"
	"github.com/walteh/fetchrc/pkg/config"
	"github.com/walteh/fetchrc/pkg/fsys"
	"github.com/walteh/fetchrc/pkg/log"
	"github.com/walteh/fetchrc/pkg/resource"
)

type workspace struct {
	dir     string
	opts    *opts.RootOpts
	console *bytes.Buffer
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/schema.json":
			fmt.Fprint(w, `{"version": 2}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bundle"), 0755), "creating bundle dir should succeed")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bundle", "readme.md"), []byte("# readme"), 0644), "writing bundle should succeed")

	cfgPath := filepath.Join(dir, ".fetchrc.yaml")
	cfgYAML := fmt.Sprintf(`
resources:
  - name: schema
    destination: gen/schema.json
    remote: %s/schema.json
  - name: readme
    destination: README.md
    bundle: bundle/readme.md
`, srv.URL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0644), "writing config should succeed")

	ctx := testContext(t)
	cfg, err := config.LoadConfig(ctx, cfgPath)
	require.NoError(t, err, "loading config should succeed")

	console := &bytes.Buffer{}
	return &workspace{
		dir:     dir,
		console: console,
		opts: &opts.RootOpts{
			Config:     cfg,
			UserLogger: log.New(console, zerolog.Disabled),
			FS:         fsys.NewOS(),
		},
	}
}

func testContext(t *testing.T) context.Context {
	return zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(testContext(t))
}

func TestSyncStatusClean(t *testing.T) {
	ws := newWorkspace(t)
	schema := filepath.Join(ws.dir, "gen", "schema.json")
	readme := filepath.Join(ws.dir, "README.md")

	require.NoError(t, execute(t, NewSyncCmd(ws.opts), "--no-progress"), "sync should succeed")

	content, err := os.ReadFile(schema)
	require.NoError(t, err, "remote resource should be placed")
	assert.Equal(t, `{"version": 2}`, string(content), "remote content should match")
	content, err = os.ReadFile(readme)
	require.NoError(t, err, "bundled resource should be placed")
	assert.Equal(t, "# readme", string(content), "bundled content should match")
	assert.Contains(t, ws.console.String(), "placed 2 resources", "sync should report success")

	rows, clean, err := statusRows(testContext(t), ws.opts)
	require.NoError(t, err, "status should succeed")
	assert.True(t, clean, "freshly synced files should be in place")
	require.Len(t, rows, 2, "both placements should be reported")
	for _, r := range rows {
		assert.Equal(t, "ok", r.State, "%s should verify", r.Destination)
	}
	require.NoError(t, execute(t, NewStatusCmd(ws.opts), "--check"), "status --check should pass")

	require.NoError(t, os.WriteFile(readme, []byte("edited"), 0644), "editing placed file should succeed")
	err = execute(t, NewStatusCmd(ws.opts), "--check")
	require.Error(t, err, "status --check should fail after an edit")
	assert.True(t, errors.Is(err, ErrNeedsSync), "error should be ErrNeedsSync")

	require.NoError(t, execute(t, NewCleanCmd(ws.opts), "--dry-run"), "dry run should succeed")
	assert.FileExists(t, schema, "dry run should not remove files")

	require.NoError(t, execute(t, NewCleanCmd(ws.opts), schema), "clean of one destination should succeed")
	assert.NoFileExists(t, schema, "named destination should be removed")
	assert.FileExists(t, readme, "other destinations should be kept")

	require.NoError(t, execute(t, NewCleanCmd(ws.opts)), "clean should succeed")
	assert.NoFileExists(t, readme, "remaining destinations should be removed")

	rows, clean, err = statusRows(testContext(t), ws.opts)
	require.NoError(t, err, "status should succeed")
	assert.False(t, clean, "cleaned resources need a sync")
	for _, r := range rows {
		assert.Equal(t, "not placed", r.State, "%s should be reported as not placed", r.Destination)
	}
}

func TestSyncFailure(t *testing.T) {
	ws := newWorkspace(t)
	ws.opts.Config.Resources[0].Remote = ws.opts.Config.Resources[0].Remote + ".missing"

	err := execute(t, NewSyncCmd(ws.opts), "--no-progress")
	require.Error(t, err, "sync should fail when a remote is missing")
	assert.Contains(t, err.Error(), "syncing resources", "error should be wrapped")
	assert.Contains(t, ws.console.String(), "failed", "failed resource should be reported")
}

func TestStatusReportsUnmanaged(t *testing.T) {
	ws := newWorkspace(t)
	readme := filepath.Join(ws.dir, "README.md")
	require.NoError(t, os.WriteFile(readme, []byte("mine"), 0644), "writing existing file should succeed")

	rows, clean, err := statusRows(testContext(t), ws.opts)
	require.NoError(t, err, "status should succeed")
	assert.False(t, clean, "unplaced schema needs a sync")

	states := map[string]string{}
	for _, r := range rows {
		states[r.Destination] = r.State
	}
	assert.Equal(t, "unmanaged", states[readme], "existing file should be unmanaged")
	assert.Equal(t, "not placed", states[filepath.Join(ws.dir, "gen", "schema.json")], "missing file should be not placed")
}

func TestDistinctRemotes(t *testing.T) {
	tests := []struct {
		name  string
		items []resource.Item
		want  int
	}{
		{
			name: "bundles_only",
			items: []resource.Item{
				{Resource: resource.NewBundle("a", "bundle/a")},
			},
			want: 0,
		},
		{
			name: "shared_url",
			items: []resource.Item{
				{Resource: resource.NewRemote("a", "https://example.com/schema.json")},
				{Resource: resource.NewBoth("b", "bundle/b", "https://example.com/schema.json")},
				{Resource: resource.NewRemote("c", "https://example.com/other.json")},
			},
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, distinctRemotes(tt.items), "each url should count once")
		})
	}
}
