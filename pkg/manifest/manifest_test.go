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

package manifest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/fetchrc/pkg/fsys"
	"github.com/walteh/fetchrc/pkg/manifest"
	"github.com/walteh/fetchrc/pkg/status"
)

func openStore(t *testing.T) *manifest.Store {
	t.Helper()
	store, err := manifest.Open(filepath.Join(t.TempDir(), "state", "manifest.db"))
	require.NoError(t, err, "opening a fresh manifest should succeed")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	runID := uuid.NewString()

	require.NoError(t, store.Record(ctx, manifest.Entry{Destination: "b.json", Source: "bundle/b.json", RunID: runID}))
	require.NoError(t, store.Record(ctx, manifest.Entry{Destination: "a.json", Source: "https://example.com/a.json", RunID: runID}))

	entry, found, err := store.Get("a.json")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "https://example.com/a.json", entry.Source)
	assert.Equal(t, runID, entry.RunID)
	assert.False(t, entry.PlacedAt.IsZero(), "placed time should be stamped")

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.json", entries[0].Destination, "entries should be sorted")

	require.NoError(t, store.Forget(ctx, "a.json"))
	require.NoError(t, store.Forget(ctx, "a.json"), "forgetting twice is fine")
	_, found, err = store.Get("a.json")
	require.NoError(t, err)
	assert.False(t, found)

	assert.Error(t, store.Record(ctx, manifest.Entry{}), "an entry needs a destination")
}

func TestStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "manifest.db")

	store, err := manifest.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, manifest.Entry{Destination: "a.json", Checksum: "abc"}))
	require.NoError(t, store.Close())

	store, err = manifest.Open(path)
	require.NoError(t, err)
	defer store.Close()

	entry, found, err := store.Get("a.json")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "abc", entry.Checksum)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ok := filepath.Join(dir, "ok.json")
	changed := filepath.Join(dir, "changed.json")
	require.NoError(t, os.WriteFile(ok, []byte("ok"), 0o644))
	require.NoError(t, os.WriteFile(changed, []byte("edited"), 0o644))

	checks := manifest.Verify(ctx, fsys.NewOS(), []manifest.Entry{
		{Destination: ok, Checksum: status.Checksum([]byte("ok"))},
		{Destination: changed, Checksum: status.Checksum([]byte("original"))},
		{Destination: filepath.Join(dir, "gone.json"), Checksum: "x"},
	})

	require.Len(t, checks, 3)
	assert.Equal(t, manifest.HealthOK, checks[0].Health)
	assert.Equal(t, manifest.HealthModified, checks[1].Health)
	assert.Equal(t, manifest.HealthMissing, checks[2].Health)
	assert.Equal(t, "missing", checks[2].Health.String())
}
