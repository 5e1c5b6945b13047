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
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/fetchrc/pkg/download"
	"github.com/walteh/fetchrc/pkg/placement"
	"github.com/walteh/fetchrc/pkg/resource"
	"github.com/walteh/fetchrc/pkg/status"
	"gitlab.com/tozd/go/errors"
)

// 🎯 Operation is one unit of work bound to a single item
type Operation interface {
	// Item returns the resource and policy this operation places
	Item() resource.Item
	// Execute places the resource. A context that is already done returns
	// immediately without touching the filesystem or network.
	Execute(ctx context.Context) (Result, error)
}

// 📦 Result describes what an operation did
type Result struct {
	Outcome placement.Outcome
	// Source is the bundle path or url the placed bytes came from
	Source   string
	Fallback bool
	Size     int64
	Checksum string
}

// Entry converts the result to a status entry for destination
func (r Result) Entry(destination string) status.Entry {
	return status.Entry{
		Destination: destination,
		Source:      r.Source,
		Status:      status.FromOutcome(r.Outcome),
		Size:        r.Size,
		Checksum:    r.Checksum,
		Fallback:    r.Fallback,
	}
}

// 🔧 Deps contains the collaborators shared by every operation in a batch
type Deps struct {
	// Placer applies copy policies to the filesystem
	Placer *placement.Placer
	// Client performs remote transfers
	Client *http.Client
	// Challenge answers TLS and basic auth challenges
	Challenge download.ChallengeHandler
	// TempDir holds in-flight downloads; empty means the OS default
	TempDir         string
	RetryAttempts   int
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration
	// Progress receives download ratios keyed by the resource url
	Progress func(url string, ratio float32)
}

// 🏭 New creates the operation matching the item's source kind
func New(item resource.Item, deps Deps) (Operation, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	if deps.Placer == nil {
		return nil, errors.Errorf("placer is required")
	}
	switch item.Kind() {
	case resource.KindBundle:
		return NewCopy(item, deps), nil
	case resource.KindRemote, resource.KindBoth:
		return NewDownload(item, deps), nil
	default:
		return nil, errors.Errorf("unsupported source kind %s", item.Kind())
	}
}

// 🧱 BaseOperation holds what every operation shares
type BaseOperation struct {
	item resource.Item
	deps Deps
}

// NewBaseOperation creates a base for item
func NewBaseOperation(item resource.Item, deps Deps) BaseOperation {
	return BaseOperation{item: item, deps: deps}
}

func (b *BaseOperation) Item() resource.Item { return b.item }

func (b *BaseOperation) logger(ctx context.Context) zerolog.Logger {
	return zerolog.Ctx(ctx).With().
		Str("destination", b.item.Destination).
		Str("source", b.item.Source.String()).
		Str("policy", b.item.Policy.String()).
		Logger()
}

// finish fills in size and checksum for a placed destination
func (b *BaseOperation) finish(ctx context.Context, res Result) Result {
	if !res.Outcome.Placed() {
		return res
	}
	content, err := b.deps.Placer.FS().ReadBytes(ctx, b.item.Destination)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("destination", b.item.Destination).Msg("could not read placed file for checksum")
		return res
	}
	res.Size = int64(len(content))
	res.Checksum = status.Checksum(content)
	return res
}

func notStarted(ctx context.Context) error {
	return errors.Errorf("operation not started: %w", context.Cause(ctx))
}
