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

package fetch

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/walteh/fetchrc/pkg/manifest"
	"github.com/walteh/fetchrc/pkg/operation"
	"github.com/walteh/fetchrc/pkg/resource"
	"github.com/walteh/fetchrc/pkg/status"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// 🧺 Collector gathers operation errors. It only ever appends.
type Collector struct {
	mu   sync.Mutex
	errs []error
}

// Add appends err. Nil is ignored.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

// First returns the earliest collected error
func (c *Collector) First() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) == 0 {
		return nil
	}
	return c.errs[0]
}

// All returns a copy of every collected error
func (c *Collector) All() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

// 🏃 Run is one batch in flight
type Run struct {
	id      string
	fetcher *Fetcher
	ctx     context.Context
	cancel  context.CancelFunc

	cancelled atomic.Bool
	collector Collector
	tracker   *status.Tracker

	placedMu sync.Mutex
	placed   []string

	once   sync.Once
	done   chan struct{}
	result error
	// endedCancelled is written before done is closed
	endedCancelled bool
}

func newRun(ctx context.Context, f *Fetcher) *Run {
	id := uuid.NewString()
	logger := zerolog.Ctx(ctx).With().Str("run_id", id).Logger()
	ctx, cancel := context.WithCancel(logger.WithContext(ctx))
	return &Run{
		id:      id,
		fetcher: f,
		ctx:     ctx,
		cancel:  cancel,
		tracker: status.NewTracker(nil),
		done:    make(chan struct{}),
	}
}

// ID returns the run's unique id
func (r *Run) ID() string { return r.id }

// Cancel stops every outstanding operation. Once they have joined, files
// this run placed are removed and the run completes with a nil error, even
// when operations had failed before the cancel. Cancel has no effect once
// the run has completed.
func (r *Run) Cancel() {
	select {
	case <-r.done:
		return
	default:
	}
	r.cancelled.Store(true)
	r.cancel()
}

// Done is closed once the run has completed
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run completes and returns its result
func (r *Run) Wait() error {
	<-r.done
	return r.result
}

// Cancelled reports whether the run was cancelled. After completion it
// reports whether the run completed as cancelled, with its placements removed.
func (r *Run) Cancelled() bool {
	select {
	case <-r.done:
		return r.endedCancelled
	default:
		return r.cancelled.Load()
	}
}

// Errors returns every error collected, for diagnostics. The run's result
// is only the first.
func (r *Run) Errors() []error { return r.collector.All() }

// Report returns the per-resource status entries
func (r *Run) Report() []status.Entry { return r.tracker.List() }

// 🚀 RunBatch starts items and returns immediately. onComplete is called
// exactly once, through the fetcher's dispatcher, after every operation has
// finished. Progress ticks stop once the run is cancelled.
func (f *Fetcher) RunBatch(ctx context.Context, items []resource.Item, onProgress ProgressFunc, onComplete CompletionFunc) *Run {
	run := newRun(ctx, f)
	go run.execute(items, onProgress, onComplete)
	return run
}

func (r *Run) execute(items []resource.Item, onProgress ProgressFunc, onComplete CompletionFunc) {
	ctx := r.ctx
	logger := zerolog.Ctx(ctx)
	defer r.cancel()

	if err := validate(items); err != nil {
		r.complete(err, false, onComplete)
		return
	}

	if r.fetcher.resolver != nil {
		resolved, err := r.fetcher.resolver.ResolveItems(ctx, items)
		if err != nil {
			if r.wasCancelled() {
				r.complete(nil, true, onComplete)
			} else {
				r.complete(err, false, onComplete)
			}
			return
		}
		items = resolved
	}

	logger.Debug().Int("items", len(items)).Int("max_concurrency", r.fetcher.maxConcurrency).Msg("starting batch")
	r.tracker.StartOperation(ctx, len(items))

	deps := operation.Deps{
		Placer:          r.fetcher.placer(),
		Client:          r.fetcher.client,
		Challenge:       r.fetcher.challenge,
		TempDir:         r.fetcher.tempDir,
		RetryAttempts:   r.fetcher.retryAttempts,
		RetryBackoff:    r.fetcher.retryBackoff,
		RetryMaxBackoff: r.fetcher.retryMaxBackoff,
		Progress:        r.progress(onProgress),
	}
	runner := operation.NewRunner(r.tracker)

	var g errgroup.Group
	g.SetLimit(r.fetcher.maxConcurrency)

	for _, item := range items {
		op, err := operation.New(item, deps)
		if err != nil {
			r.collector.Add(err)
			continue
		}
		g.Go(func() error {
			res, err := runner.Run(ctx, op)
			if err != nil {
				r.collector.Add(err)
				return nil
			}
			if res.Outcome.Placed() {
				r.markPlaced(ctx, item, res)
			}
			return nil
		})
	}

	// operations report into the collector, never to the group
	_ = g.Wait()

	if r.wasCancelled() {
		r.cleanup(ctx)
		logger.Debug().Int("errors", len(r.collector.All())).Msg("batch cancelled")
		r.complete(nil, true, onComplete)
		return
	}

	r.complete(r.collector.First(), false, onComplete)
}

// wasCancelled reports a Cancel call or a cancelled parent context. A parent
// deadline is a failure, not a cancellation.
func (r *Run) wasCancelled() bool {
	if r.cancelled.Load() {
		return true
	}
	return errors.Is(r.ctx.Err(), context.Canceled)
}

func (r *Run) progress(onProgress ProgressFunc) func(string, float32) {
	if onProgress == nil {
		return nil
	}
	return func(url string, ratio float32) {
		if r.cancelled.Load() || r.ctx.Err() != nil {
			return
		}
		r.fetcher.dispatch(func() {
			if r.cancelled.Load() {
				return
			}
			onProgress(url, ratio)
		})
	}
}

func (r *Run) markPlaced(ctx context.Context, item resource.Item, res operation.Result) {
	r.placedMu.Lock()
	r.placed = append(r.placed, item.Destination)
	r.placedMu.Unlock()

	if r.fetcher.recorder == nil {
		return
	}
	err := r.fetcher.recorder.Record(ctx, manifest.Entry{
		Destination: item.Destination,
		Source:      res.Source,
		Policy:      item.Policy.String(),
		Checksum:    res.Checksum,
		Size:        res.Size,
		Fallback:    res.Fallback,
		RunID:       r.id,
		PlacedAt:    time.Now().UTC(),
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("destination", item.Destination).Msg("could not record placement")
	}
}

// cleanup removes every destination this run placed. Failures are logged.
func (r *Run) cleanup(ctx context.Context) {
	// the run context is done; cleanup still needs a live one
	ctx = context.WithoutCancel(ctx)
	logger := zerolog.Ctx(ctx)

	r.placedMu.Lock()
	placed := append([]string(nil), r.placed...)
	r.placedMu.Unlock()

	for _, dst := range placed {
		if err := r.fetcher.fs.Remove(ctx, dst); err != nil {
			logger.Warn().Err(err).Str("destination", dst).Msg("could not remove placed file after cancel")
			continue
		}
		r.tracker.Track(ctx, status.Entry{Destination: dst, Status: status.StatusCancelled})
		if r.fetcher.recorder != nil {
			if err := r.fetcher.recorder.Forget(ctx, dst); err != nil {
				logger.Warn().Err(err).Str("destination", dst).Msg("could not forget placement after cancel")
			}
		}
	}
}

func (r *Run) complete(err error, cancelled bool, onComplete CompletionFunc) {
	r.once.Do(func() {
		r.result = err
		r.endedCancelled = cancelled
		if onComplete != nil {
			r.fetcher.dispatch(func() { onComplete(err) })
		}
		close(r.done)
	})
}

func validate(items []resource.Item) error {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return err
		}
		key := filepath.Clean(item.Destination)
		if _, dup := seen[key]; dup {
			return errors.Errorf("%s: %w", item.Destination, ErrDuplicateDestination)
		}
		seen[key] = struct{}{}
	}
	return nil
}
