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

package config

import (
	"context"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fetchrc/pkg/download"
	"github.com/walteh/fetchrc/pkg/fetch"
	"github.com/walteh/fetchrc/pkg/resource"
)

// 📋 Items turns the declared resources and expanded bundle globs into items,
// with relative paths resolved against the config's directory
func (c *Config) Items(ctx context.Context) ([]resource.Item, error) {
	base := ""
	if c.location != "" {
		base = filepath.Dir(c.location)
	}

	items := make([]resource.Item, 0, len(c.Resources))
	for _, r := range c.Resources {
		policy, err := policyFor(r.Policy, r.Compare)
		if err != nil {
			return nil, errors.Errorf("resource %s: %w", r.Destination, err)
		}
		items = append(items, resource.Item{Resource: r.resource(base), Policy: policy})
	}

	for _, g := range c.BundleGlobs {
		expanded, err := g.expand(ctx, base)
		if err != nil {
			return nil, errors.Errorf("expanding bundle_glob %s/%s: %w", g.Dir, g.Pattern, err)
		}
		items = append(items, expanded...)
	}

	return items, nil
}

// expand lists the files under Dir matching Pattern that no Ignore pattern matches
func (g BundleGlob) expand(ctx context.Context, base string) ([]resource.Item, error) {
	policy, err := policyFor(g.Policy, g.Compare)
	if err != nil {
		return nil, err
	}

	dir := g.Dir
	dst := g.Destination
	if base != "" {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(base, dir)
		}
		if !filepath.IsAbs(dst) {
			dst = filepath.Join(base, dst)
		}
	}

	root := os.DirFS(dir)
	matches, err := doublestar.Glob(root, g.Pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	logger := zerolog.Ctx(ctx)
	items := make([]resource.Item, 0, len(matches))
	for _, rel := range matches {
		info, err := fs.Stat(root, rel)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			continue
		}

		ignored, err := matchAny(g.Ignore, rel)
		if err != nil {
			return nil, err
		}
		if ignored {
			logger.Debug().Str("path", rel).Msg("ignoring bundled file")
			continue
		}

		local := filepath.FromSlash(rel)
		items = append(items, resource.Item{
			Resource: resource.NewBundle(filepath.Join(dst, local), filepath.Join(dir, local)),
			Policy:   policy,
		})
	}

	if len(items) == 0 {
		logger.Warn().Str("dir", dir).Str("pattern", g.Pattern).Msg("bundle_glob matched no files")
	}
	return items, nil
}

func matchAny(patterns []string, path string) (bool, error) {
	for _, p := range patterns {
		ok, err := doublestar.Match(p, path)
		if err != nil {
			return false, errors.Errorf("ignore pattern %q: %w", p, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// 🔐 ChallengeHandler trusts insecure_hosts and answers basic challenges with
// basic_auth. It is nil when neither is configured.
func (c *Config) ChallengeHandler() download.ChallengeHandler {
	if c.HTTP == nil || (len(c.HTTP.InsecureHosts) == 0 && c.HTTP.BasicAuth == nil) {
		return nil
	}
	var creds *download.Credential
	if c.HTTP.BasicAuth != nil {
		creds = &download.Credential{
			Username: c.HTTP.BasicAuth.Username,
			Password: c.HTTP.BasicAuth.Password,
		}
	}
	return download.TrustHosts(creds, c.HTTP.InsecureHosts...)
}

// ⚙️ FetchOptions converts the config into fetcher options. Durations were
// checked by Validate.
func (c *Config) FetchOptions() []fetch.Option {
	opts := []fetch.Option{}
	if c.MaxConcurrency > 0 {
		opts = append(opts, fetch.WithMaxConcurrency(c.MaxConcurrency))
	}
	if c.TempDir != "" {
		opts = append(opts, fetch.WithTempDir(c.resolve(c.TempDir)))
	}
	if c.HTTP == nil {
		return opts
	}

	if timeout, _ := parseDuration(c.HTTP.Timeout); timeout > 0 {
		opts = append(opts, fetch.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	if h := c.ChallengeHandler(); h != nil {
		opts = append(opts, fetch.WithChallengeHandler(h))
	}

	backoff, _ := parseDuration(c.HTTP.RetryBackoff)
	maxBackoff, _ := parseDuration(c.HTTP.RetryMaxBackoff)
	if c.HTTP.RetryAttempts > 0 || backoff > 0 || maxBackoff > 0 {
		opts = append(opts, fetch.WithRetry(c.HTTP.RetryAttempts, backoff, maxBackoff))
	}
	return opts
}
