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

	"github.com/walteh/fetchrc/pkg/status"
)

// 🏃 Runner executes operations and records their results
type Runner struct {
	tracker *status.Tracker
}

// 🏗️ NewRunner creates a new runner reporting into tracker
func NewRunner(tracker *status.Tracker) *Runner {
	return &Runner{tracker: tracker}
}

// 🏃 Run executes op and tracks the result. The error is returned, never
// swallowed; the caller decides where it is collected.
func (r *Runner) Run(ctx context.Context, op Operation) (Result, error) {
	dst := op.Item().Destination
	res, err := op.Execute(ctx)

	switch {
	case err != nil && ctx.Err() != nil:
		r.tracker.Track(ctx, status.Entry{Destination: dst, Status: status.StatusCancelled, Error: err})
	case err != nil:
		r.tracker.Track(ctx, status.Entry{Destination: dst, Status: status.StatusFailed, Error: err})
	default:
		r.tracker.Track(ctx, res.Entry(dst))
	}
	r.tracker.Advance(ctx)

	return res, err
}
