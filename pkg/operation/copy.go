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

	"github.com/walteh/fetchrc/pkg/resource"
	"gitlab.com/tozd/go/errors"
)

// 📦 NewCopy creates an operation placing the item's bundled file
func NewCopy(item resource.Item, deps Deps) Operation {
	return &copyOperation{
		BaseOperation: NewBaseOperation(item, deps),
	}
}

// 📦 copyOperation places a bundled file at its destination
type copyOperation struct {
	BaseOperation
}

// 🏃 Execute runs the copy operation
func (op *copyOperation) Execute(ctx context.Context) (Result, error) {
	if ctx.Err() != nil {
		return Result{}, notStarted(ctx)
	}

	src, ok := op.item.Source.BundlePath()
	if !ok {
		return Result{}, errors.Errorf("resource %s has no bundled source", op.item.Destination)
	}
	return op.copyFrom(ctx, src)
}

func (op *copyOperation) copyFrom(ctx context.Context, src string) (Result, error) {
	outcome, err := op.deps.Placer.Place(ctx, src, op.item.Destination, op.item.Policy)
	if err != nil {
		return Result{}, errors.Errorf("copying bundled file %s: %w", src, err)
	}
	return op.finish(ctx, Result{Outcome: outcome, Source: src}), nil
}
