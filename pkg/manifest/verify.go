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

package manifest

import (
	"context"

	"github.com/walteh/fetchrc/pkg/fsys"
	"github.com/walteh/fetchrc/pkg/status"
)

// 🩺 Health describes a recorded destination compared with the disk
type Health int

const (
	HealthOK Health = iota
	HealthMissing
	HealthModified
	HealthUnreadable
)

func (h Health) String() string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthMissing:
		return "missing"
	case HealthModified:
		return "modified"
	default:
		return "unreadable"
	}
}

// Check is the health of one recorded entry
type Check struct {
	Entry  Entry
	Health Health
	Err    error
}

// Verify compares each entry's checksum with the file on disk
func Verify(ctx context.Context, fs fsys.FileSystem, entries []Entry) []Check {
	checks := make([]Check, 0, len(entries))
	for _, e := range entries {
		checks = append(checks, verifyOne(ctx, fs, e))
	}
	return checks
}

func verifyOne(ctx context.Context, fs fsys.FileSystem, e Entry) Check {
	exists, err := fs.Exists(ctx, e.Destination)
	if err != nil {
		return Check{Entry: e, Health: HealthUnreadable, Err: err}
	}
	if !exists {
		return Check{Entry: e, Health: HealthMissing}
	}

	content, err := fs.ReadBytes(ctx, e.Destination)
	if err != nil {
		return Check{Entry: e, Health: HealthUnreadable, Err: err}
	}
	if status.Checksum(content) != e.Checksum {
		return Check{Entry: e, Health: HealthModified}
	}
	return Check{Entry: e, Health: HealthOK}
}
