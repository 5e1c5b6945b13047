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

// Package resource describes files that fetchrc places on disk: where each
// one lives locally, where it can be copied or downloaded from, and the
// policy that decides whether an existing local copy gets replaced.
package resource

import (
	"context"
	"fmt"
	"net/url"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fetchrc/pkg/fsys"
)

// 🏷️ Kind identifies which sources a resource carries
type Kind int

const (
	KindUnknown Kind = iota
	KindBundle       // packaged with the application
	KindRemote       // network addressable
	KindBoth         // bundled copy plus a remote copy
)

// String returns a string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindBundle:
		return "bundle"
	case KindRemote:
		return "remote"
	case KindBoth:
		return "both"
	default:
		return "unknown"
	}
}

// 📦 Source is a tagged variant over the places a resource can come from.
// The zero value has KindUnknown and is rejected by Validate.
type Source struct {
	kind   Kind
	bundle string
	remote string
}

// Bundle returns a source backed by a read-only bundled file
func Bundle(path string) Source {
	return Source{kind: KindBundle, bundle: path}
}

// Remote returns a source backed by a remote URL
func Remote(rawURL string) Source {
	return Source{kind: KindRemote, remote: rawURL}
}

// Both returns a source with a bundled file and a remote URL
func Both(path, rawURL string) Source {
	return Source{kind: KindBoth, bundle: path, remote: rawURL}
}

func (s Source) Kind() Kind { return s.kind }

// BundlePath returns the bundled file path when the source has one
func (s Source) BundlePath() (string, bool) {
	if s.kind == KindBundle || s.kind == KindBoth {
		return s.bundle, true
	}
	return "", false
}

// RemoteURL returns the remote URL when the source has one
func (s Source) RemoteURL() (string, bool) {
	if s.kind == KindRemote || s.kind == KindBoth {
		return s.remote, true
	}
	return "", false
}

func (s Source) String() string {
	switch s.kind {
	case KindBundle:
		return "bundle:" + s.bundle
	case KindRemote:
		return s.remote
	case KindBoth:
		return fmt.Sprintf("%s (bundle:%s)", s.remote, s.bundle)
	default:
		return "unknown"
	}
}

// 📄 Resource is a file with exactly one local destination
type Resource struct {
	Destination string
	Source      Source
}

// NewBundle creates a resource copied from a bundled file
func NewBundle(destination, bundlePath string) Resource {
	return Resource{Destination: destination, Source: Bundle(bundlePath)}
}

// NewRemote creates a resource downloaded from a remote URL
func NewRemote(destination, rawURL string) Resource {
	return Resource{Destination: destination, Source: Remote(rawURL)}
}

// NewBoth creates a resource that can come from either a bundled file or a remote URL
func NewBoth(destination, bundlePath, rawURL string) Resource {
	return Resource{Destination: destination, Source: Both(bundlePath, rawURL)}
}

func (r Resource) Kind() Kind { return r.Source.kind }

// 🔍 Validate checks that the resource can be placed
func (r Resource) Validate() error {
	if r.Destination == "" {
		return errors.Errorf("destination is required")
	}
	switch r.Source.kind {
	case KindBundle, KindRemote, KindBoth:
	default:
		return errors.Errorf("resource %s has no source", r.Destination)
	}
	if p, ok := r.Source.BundlePath(); ok && p == "" {
		return errors.Errorf("resource %s has an empty bundle path", r.Destination)
	}
	if raw, ok := r.Source.RemoteURL(); ok {
		u, err := url.Parse(raw)
		if err != nil {
			return errors.Errorf("resource %s has an invalid remote url: %w", r.Destination, err)
		}
		if u.Scheme == "" {
			return errors.Errorf("resource %s remote url %q has no scheme", r.Destination, raw)
		}
	}
	return nil
}

// 🗑️ DeleteSavedFile removes the resource's destination through fs. A missing
// file is not an error.
func (r Resource) DeleteSavedFile(ctx context.Context, fs fsys.FileSystem) error {
	if err := fs.Remove(ctx, r.Destination); err != nil {
		return errors.Errorf("deleting %s: %w", r.Destination, err)
	}
	return nil
}

// Item binds one resource to the policy it is placed with
type Item struct {
	Resource
	Policy CopyPolicy
}
