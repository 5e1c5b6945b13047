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

// Package remote turns remote source references into downloadable urls.
package remote

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/walteh/fetchrc/pkg/resource"
	"gitlab.com/tozd/go/errors"
)

// Resolver maps a reference in its scheme to a plain http(s) url
type Resolver interface {
	// Scheme returns the url scheme handled (e.g. "github")
	Scheme() string
	// Resolve returns the download url for ref
	Resolve(ctx context.Context, ref *url.URL) (string, error)
}

// 🗂️ Registry dispatches references to resolvers by scheme. http and https
// pass through unchanged.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
}

// NewRegistry creates a registry holding resolvers
func NewRegistry(resolvers ...Resolver) *Registry {
	r := &Registry{resolvers: map[string]Resolver{}}
	for _, res := range resolvers {
		r.Register(res)
	}
	return r
}

// Register adds or replaces the resolver for its scheme
func (r *Registry) Register(res Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[strings.ToLower(res.Scheme())] = res
}

// Resolve returns the download url for raw
func (r *Registry) Resolve(ctx context.Context, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Errorf("parsing remote %q: %w", raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "http" || scheme == "https" {
		return raw, nil
	}

	r.mu.RLock()
	res, ok := r.resolvers[scheme]
	r.mu.RUnlock()
	if !ok {
		return "", errors.Errorf("no resolver for scheme %q, options: %s", u.Scheme, strings.Join(r.schemes(), ", "))
	}

	resolved, err := res.Resolve(ctx, u)
	if err != nil {
		return "", errors.Errorf("resolving %s: %w", raw, err)
	}
	zerolog.Ctx(ctx).Debug().Str("remote", raw).Str("url", resolved).Msg("resolved remote")
	return resolved, nil
}

// ResolveItems returns items with every remote url resolved
func (r *Registry) ResolveItems(ctx context.Context, items []resource.Item) ([]resource.Item, error) {
	out := make([]resource.Item, len(items))
	for i, item := range items {
		out[i] = item
		raw, ok := item.Source.RemoteURL()
		if !ok {
			continue
		}
		resolved, err := r.Resolve(ctx, raw)
		if err != nil {
			return nil, err
		}
		if bundle, hasBundle := item.Source.BundlePath(); hasBundle {
			out[i].Source = resource.Both(bundle, resolved)
		} else {
			out[i].Source = resource.Remote(resolved)
		}
	}
	return out, nil
}

func (r *Registry) schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	options := []string{"http", "https"}
	for k := range r.resolvers {
		options = append(options, k)
	}
	sort.Strings(options)
	return options
}
