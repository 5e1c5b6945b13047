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

// Package placement applies a copy policy to put a source file at its
// destination.
package placement

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/walteh/fetchrc/pkg/fsys"
	"github.com/walteh/fetchrc/pkg/resource"
	"gitlab.com/tozd/go/errors"
)

// ErrComparisonUnavailable is logged when manual comparison cannot read one
// of the two files. It is never returned; the copy proceeds instead.
var ErrComparisonUnavailable = errors.Base("comparison unavailable")

// 📊 Outcome is what happened to a destination
type Outcome int

const (
	OutcomeSkipped  Outcome = iota // only_when_new and the destination existed
	OutcomeKept                    // the comparator kept the current file
	OutcomeCreated                 // destination did not exist and was written
	OutcomeReplaced                // destination existed and was overwritten
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeKept:
		return "kept"
	case OutcomeCreated:
		return "created"
	case OutcomeReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Placed reports whether the destination was written
func (o Outcome) Placed() bool {
	return o == OutcomeCreated || o == OutcomeReplaced
}

// BytesProvider lazily reads one side of a comparison
type BytesProvider func() ([]byte, error)

// 🧭 Decide evaluates policy for a destination. Byte providers are only
// called for manual comparison.
func Decide(ctx context.Context, destinationExists bool, policy resource.CopyPolicy, source, destination BytesProvider) bool {
	switch policy.Kind() {
	case resource.PolicyOnlyWhenNew:
		return !destinationExists
	case resource.PolicyAlwaysCopy:
		return true
	case resource.PolicyManualCompare:
		if !destinationExists {
			return true
		}
		current, curErr := destination()
		candidate, candErr := source()
		if curErr != nil || candErr != nil {
			zerolog.Ctx(ctx).Warn().
				AnErr("current_error", curErr).
				AnErr("candidate_error", candErr).
				Err(ErrComparisonUnavailable).
				Msg("could not compare files, continuing with copy")
			return true
		}
		cmp := policy.Comparator()
		if cmp == nil {
			cmp = resource.BytesDiffer
		}
		return cmp(current, candidate)
	default:
		return false
	}
}

// 🏗️ Placer copies files into place according to a policy
type Placer struct {
	fs fsys.FileSystem
}

// New creates a placer over fs
func New(fs fsys.FileSystem) *Placer {
	return &Placer{fs: fs}
}

// FS returns the filesystem the placer writes to
func (p *Placer) FS() fsys.FileSystem { return p.fs }

// 📥 Place puts src at dst according to policy
func (p *Placer) Place(ctx context.Context, src, dst string, policy resource.CopyPolicy) (Outcome, error) {
	logger := zerolog.Ctx(ctx).With().Str("source", src).Str("destination", dst).Str("policy", policy.String()).Logger()

	exists, err := p.fs.Exists(ctx, dst)
	if err != nil {
		return OutcomeSkipped, errors.Errorf("checking destination: %w", err)
	}

	proceed := Decide(ctx, exists, policy,
		func() ([]byte, error) { return p.fs.ReadBytes(ctx, src) },
		func() ([]byte, error) { return p.fs.ReadBytes(ctx, dst) },
	)
	if !proceed {
		if policy.Kind() == resource.PolicyOnlyWhenNew {
			logger.Debug().Msg("destination exists, skipping")
			return OutcomeSkipped, nil
		}
		logger.Debug().Msg("comparator kept current file")
		return OutcomeKept, nil
	}

	dir := filepath.Dir(dst)
	dirExists, err := p.fs.Exists(ctx, dir)
	if err != nil {
		return OutcomeSkipped, errors.Errorf("checking parent directory: %w", err)
	}
	if !dirExists {
		if err := p.fs.CreateDir(ctx, dir); err != nil {
			return OutcomeSkipped, errors.Errorf("creating parent directory: %w", err)
		}
	}

	if exists {
		if err := p.fs.Remove(ctx, dst); err != nil {
			logger.Debug().Err(err).Msg("could not remove existing destination, copying anyway")
		}
	}

	if err := p.fs.Copy(ctx, src, dst); err != nil {
		return OutcomeSkipped, errors.Errorf("copying to destination: %w", err)
	}

	outcome := OutcomeCreated
	if exists {
		outcome = OutcomeReplaced
	}
	logger.Debug().Str("outcome", outcome.String()).Msg("placed file")
	return outcome, nil
}
