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

// Package fetch runs batches of resource operations with bounded
// concurrency, a single completion and best effort cancellation.
package fetch

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/walteh/fetchrc/pkg/download"
	"github.com/walteh/fetchrc/pkg/fsys"
	"github.com/walteh/fetchrc/pkg/manifest"
	"github.com/walteh/fetchrc/pkg/placement"
	"github.com/walteh/fetchrc/pkg/remote"
	"github.com/walteh/fetchrc/pkg/resource"
	"gitlab.com/tozd/go/errors"
)

// DefaultMaxConcurrency bounds how many operations of a batch run at once
const DefaultMaxConcurrency = 8

// ErrDuplicateDestination is returned when two items in a batch share a destination
var ErrDuplicateDestination = errors.Base("duplicate destination in batch")

// ErrUnsupportedSource is returned by CopyBundled for resources without a bundled source
var ErrUnsupportedSource = errors.Base("resource has no bundled source")

// ProgressFunc receives download progress keyed by the resource's remote url
type ProgressFunc func(url string, ratio float32)

// CompletionFunc receives a batch result exactly once
type CompletionFunc func(err error)

// Dispatcher runs callbacks. It decides where progress and completion run.
type Dispatcher func(func())

// Inline runs callbacks on the calling goroutine
func Inline(f func()) { f() }

// 🎯 Fetcher places resources. A Fetcher is safe to share between batches.
type Fetcher struct {
	maxConcurrency  int
	client          *http.Client
	challenge       download.ChallengeHandler
	fs              fsys.FileSystem
	recorder        manifest.Recorder
	dispatch        Dispatcher
	resolver        *remote.Registry
	tempDir         string
	retryAttempts   int
	retryBackoff    time.Duration
	retryMaxBackoff time.Duration
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithMaxConcurrency bounds concurrent operations. Values below one use the default.
func WithMaxConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxConcurrency = n
		}
	}
}

// WithHTTPClient sets the client used for downloads
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithChallengeHandler answers TLS and basic auth challenges
func WithChallengeHandler(h download.ChallengeHandler) Option {
	return func(f *Fetcher) { f.challenge = h }
}

// WithFileSystem sets the filesystem resources are placed on
func WithFileSystem(fs fsys.FileSystem) Option {
	return func(f *Fetcher) { f.fs = fs }
}

// WithManifest records every placement in r
func WithManifest(r manifest.Recorder) Option {
	return func(f *Fetcher) { f.recorder = r }
}

// WithDispatcher sets where progress and completion callbacks run
func WithDispatcher(d Dispatcher) Option {
	return func(f *Fetcher) {
		if d != nil {
			f.dispatch = d
		}
	}
}

// WithResolver resolves non-http remote urls before a batch runs
func WithResolver(r *remote.Registry) Option {
	return func(f *Fetcher) { f.resolver = r }
}

// WithTempDir sets where in-flight downloads are written
func WithTempDir(dir string) Option {
	return func(f *Fetcher) { f.tempDir = dir }
}

// WithRetry sets download retry attempts and backoff bounds
func WithRetry(attempts int, backoff, maxBackoff time.Duration) Option {
	return func(f *Fetcher) {
		f.retryAttempts = attempts
		f.retryBackoff = backoff
		f.retryMaxBackoff = maxBackoff
	}
}

// 🏭 New creates a Fetcher
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		maxConcurrency: DefaultMaxConcurrency,
		client:         http.DefaultClient,
		fs:             fsys.NewOS(),
		dispatch:       Inline,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.challenge != nil {
		f.client = download.WithChallenge(f.client, f.challenge)
	}
	return f
}

// 📥 Fetch runs items and blocks until the batch completes
func (f *Fetcher) Fetch(ctx context.Context, items []resource.Item) error {
	return f.RunBatch(ctx, items, nil, nil).Wait()
}

// 📦 CopyBundled places bundle-only resources under one policy. Any resource
// with another source kind rejects the whole call through onComplete before
// anything runs.
func (f *Fetcher) CopyBundled(ctx context.Context, resources []resource.Resource, policy resource.CopyPolicy, onComplete CompletionFunc) *Run {
	items := make([]resource.Item, 0, len(resources))
	for _, r := range resources {
		if r.Kind() != resource.KindBundle {
			run := newRun(ctx, f)
			run.complete(errors.Errorf("%s (%s): %w", r.Destination, r.Kind(), ErrUnsupportedSource), false, onComplete)
			run.cancel()
			return run
		}
		items = append(items, resource.Item{Resource: r, Policy: policy})
	}
	return f.RunBatch(ctx, items, nil, onComplete)
}

// 🌐 FetchBytes downloads url and returns its body. It is suitable as the
// fetch function of resource.Decode.
func (f *Fetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	if f.resolver != nil {
		resolved, err := f.resolver.Resolve(ctx, url)
		if err != nil {
			return nil, err
		}
		url = resolved
	}

	tmp, err := download.New(url, f.downloadOptions()).Start(ctx)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp)

	content, err := os.ReadFile(tmp)
	if err != nil {
		return nil, errors.Errorf("reading download of %s: %w", url, err)
	}
	return content, nil
}

func (f *Fetcher) downloadOptions() download.Options {
	return download.Options{
		Client:          f.client,
		TempDir:         f.tempDir,
		Challenge:       f.challenge,
		RetryAttempts:   f.retryAttempts,
		RetryBackoff:    f.retryBackoff,
		RetryMaxBackoff: f.retryMaxBackoff,
	}
}

func (f *Fetcher) placer() *placement.Placer {
	return placement.New(f.fs)
}
