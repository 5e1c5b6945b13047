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

package fsys_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/fetchrc/pkg/fsys"
	"gitlab.com/tozd/go/errors"
)

func TestOSFileSystem(t *testing.T) {
	ctx := context.Background()
	fs := fsys.NewOS()
	dir := t.TempDir()

	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("Some Test File Text"), 0o600))

	dst := filepath.Join(dir, "nested", "deeper", "dst.txt")

	exists, err := fs.Exists(ctx, dst)
	require.NoError(t, err)
	assert.False(t, exists, "destination should not exist yet")

	require.NoError(t, fs.CreateDir(ctx, filepath.Dir(dst)), "creating nested dirs should succeed")
	require.NoError(t, fs.Copy(ctx, src, dst), "copy should succeed")

	exists, err = fs.Exists(ctx, dst)
	require.NoError(t, err)
	assert.True(t, exists, "destination should exist after copy")

	content, err := fs.ReadBytes(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, "Some Test File Text", string(content))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm(), "copied file should use the configured mode")

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files should be left behind")

	require.NoError(t, fs.Remove(ctx, dst))
	require.NoError(t, fs.Remove(ctx, dst), "removing a missing file should succeed")
}

func TestOSFileSystemErrors(t *testing.T) {
	ctx := context.Background()
	fs := fsys.NewOS()
	dir := t.TempDir()

	_, err := fs.ReadBytes(ctx, filepath.Join(dir, "missing"))
	require.Error(t, err)
	var fsErr *fsys.FileSystemError
	require.True(t, errors.As(err, &fsErr), "error should be a FileSystemError")
	assert.Equal(t, "read", fsErr.Op)

	err = fs.Copy(ctx, filepath.Join(dir, "missing"), filepath.Join(dir, "dst"))
	require.Error(t, err)
	require.True(t, errors.As(err, &fsErr))
	assert.Equal(t, "open", fsErr.Op)

	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	err = fs.CreateDir(ctx, filepath.Join(blocker, "child"))
	require.Error(t, err, "creating a dir below a file should fail")
	require.True(t, errors.As(err, &fsErr))
	assert.Equal(t, "mkdir", fsErr.Op)
}
