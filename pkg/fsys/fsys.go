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

// Package fsys is the filesystem surface resource placement runs against.
package fsys

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gitlab.com/tozd/go/errors"
)

// 💾 FileSystem handles all file system operations used to place resources
type FileSystem interface {
	Exists(ctx context.Context, path string) (bool, error)
	CreateDir(ctx context.Context, path string) error
	Copy(ctx context.Context, src, dst string) error
	// Remove deletes path. A missing path is not an error.
	Remove(ctx context.Context, path string) error
	ReadBytes(ctx context.Context, path string) ([]byte, error)
}

// ❌ FileSystemError reports a failed directory, copy, remove or read
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }

func fsErr(op, path string, err error) error {
	return errors.WithStack(&FileSystemError{Op: op, Path: path, Err: err})
}

// 🔧 OS implements FileSystem on the local disk
type OS struct {
	DirPerm  os.FileMode
	FilePerm os.FileMode
}

// NewOS creates an OS filesystem with 0755 directories and 0644 files
func NewOS() *OS {
	return &OS{DirPerm: 0o755, FilePerm: 0o644}
}

var _ FileSystem = (*OS)(nil)

func (o *OS) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fsErr("stat", path, err)
}

func (o *OS) CreateDir(ctx context.Context, path string) error {
	if err := os.MkdirAll(path, o.dirPerm()); err != nil {
		return fsErr("mkdir", path, err)
	}
	return nil
}

// Copy writes src into a temp file next to dst and renames it into place,
// so dst is either the old content or the complete new content.
func (o *OS) Copy(ctx context.Context, src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return fsErr("open", src, err)
	}
	defer source.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fsErr("create", dst, err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, source); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fsErr("copy", dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fsErr("close", dst, err)
	}
	if err := os.Chmod(tmpPath, o.filePerm()); err != nil {
		os.Remove(tmpPath)
		return fsErr("chmod", dst, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fsErr("rename", dst, err)
	}
	return nil
}

func (o *OS) Remove(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fsErr("remove", path, err)
	}
	return nil
}

func (o *OS) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fsErr("read", path, err)
	}
	return content, nil
}

func (o *OS) dirPerm() os.FileMode {
	if o.DirPerm == 0 {
		return 0o755
	}
	return o.DirPerm
}

func (o *OS) filePerm() os.FileMode {
	if o.FilePerm == 0 {
		return 0o644
	}
	return o.FilePerm
}
