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
	"net/http"

	"github.com/walteh/fetchrc/pkg/download"
	"github.com/walteh/fetchrc/pkg/placement"
	"github.com/walteh/fetchrc/pkg/resource"
	"gitlab.com/tozd/go/errors"
)

// 🌐 NewDownload creates an operation fetching the item's remote file. Items
// that also carry a bundle fall back to it when the transfer fails.
func NewDownload(item resource.Item, deps Deps) Operation {
	return &downloadOperation{
		copyOperation: copyOperation{BaseOperation: NewBaseOperation(item, deps)},
	}
}

// 🌐 downloadOperation downloads to a temp file then places it
type downloadOperation struct {
	copyOperation
}

// 🏃 Execute runs the download operation
func (op *downloadOperation) Execute(ctx context.Context) (Result, error) {
	if ctx.Err() != nil {
		return Result{}, notStarted(ctx)
	}

	url, ok := op.item.Source.RemoteURL()
	if !ok {
		return Result{}, errors.Errorf("resource %s has no remote source", op.item.Destination)
	}
	logger := op.logger(ctx)

	if op.item.Policy.Kind() == resource.PolicyOnlyWhenNew {
		exists, err := op.deps.Placer.FS().Exists(ctx, op.item.Destination)
		if err != nil {
			return Result{}, errors.Errorf("checking destination: %w", err)
		}
		if exists {
			logger.Debug().Msg("destination exists, skipping download")
			return Result{Outcome: placement.OutcomeSkipped, Source: url}, nil
		}
	}

	tmp, err := op.downloader(url).Start(ctx)
	if err != nil {
		if bundle, hasBundle := op.item.Source.BundlePath(); hasBundle && download.IsTransport(err) {
			logger.Warn().Err(err).Str("bundle", bundle).Msg("download failed, falling back to bundled copy")
			res, cerr := op.copyFrom(ctx, bundle)
			if cerr != nil {
				return Result{}, cerr
			}
			res.Fallback = true
			return res, nil
		}
		return Result{}, errors.Errorf("downloading %s: %w", url, err)
	}
	defer func() {
		if err := op.deps.Placer.FS().Remove(ctx, tmp); err != nil {
			logger.Debug().Err(err).Str("temp", tmp).Msg("could not remove temp file")
		}
	}()

	outcome, err := op.deps.Placer.Place(ctx, tmp, op.item.Destination, op.item.Policy)
	if err != nil {
		return Result{}, errors.Errorf("placing download from %s: %w", url, err)
	}
	return op.finish(ctx, Result{Outcome: outcome, Source: url}), nil
}

func (op *downloadOperation) downloader(url string) *download.Downloader {
	opts := download.Options{
		Client:          op.deps.Client,
		TempDir:         op.deps.TempDir,
		Challenge:       op.deps.Challenge,
		RetryAttempts:   op.deps.RetryAttempts,
		RetryBackoff:    op.deps.RetryBackoff,
		RetryMaxBackoff: op.deps.RetryMaxBackoff,
	}
	if op.deps.Progress != nil {
		opts.Progress = func(_ *http.Request, ratio float32) {
			op.deps.Progress(url, ratio)
		}
	}
	return download.New(url, opts)
}
