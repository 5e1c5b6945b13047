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

package operation

import (
	"context"

	"github.com/walteh/fetchrc/pkg/fsys"
	"github.com/walteh/fetchrc/pkg/status"
	"gitlab.com/tozd/go/errors"
)

// 🧹 Clean removes each destination and marks it deleted in tracker. It
// stops at the first failure.
func Clean(ctx context.Context, fs fsys.FileSystem, tracker *status.Tracker, destinations []string) error {
	tracker.StartOperation(ctx, len(destinations))

	for _, dst := range destinations {
		if err := fs.Remove(ctx, dst); err != nil {
			tracker.Track(ctx, status.Entry{Destination: dst, Status: status.StatusFailed, Error: err})
			return errors.Errorf("cleaning %s: %w", dst, err)
		}
		tracker.Track(ctx, status.Entry{Destination: dst, Status: status.StatusDeleted})
		tracker.Advance(ctx)
	}

	return nil
}
