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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fetchrc/pkg/resource"
)

// DefaultManifest is where placements are recorded when the config names no manifest
const DefaultManifest = ".fetchrc/manifest.db"

// 📝 Config is the root of a .fetchrc file
type Config struct {
	MaxConcurrency int              `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty" hcl:"max_concurrency,optional"`
	Manifest       string           `json:"manifest,omitempty" yaml:"manifest,omitempty" hcl:"manifest,optional"`
	TempDir        string           `json:"temp_dir,omitempty" yaml:"temp_dir,omitempty" hcl:"temp_dir,optional"`
	HTTP           *HTTPConfig      `json:"http,omitempty" yaml:"http,omitempty" hcl:"http,block"`
	Resources      []ResourceConfig `json:"resources,omitempty" yaml:"resources,omitempty" hcl:"resource,block"`
	BundleGlobs    []BundleGlob     `json:"bundle_globs,omitempty" yaml:"bundle_globs,omitempty" hcl:"bundle_glob,block"`

	location string
}

// 🌐 HTTPConfig tunes the download transport
type HTTPConfig struct {
	RetryAttempts   int        `json:"retry_attempts,omitempty" yaml:"retry_attempts,omitempty" hcl:"retry_attempts,optional"`
	RetryBackoff    string     `json:"retry_backoff,omitempty" yaml:"retry_backoff,omitempty" hcl:"retry_backoff,optional"`
	RetryMaxBackoff string     `json:"retry_max_backoff,omitempty" yaml:"retry_max_backoff,omitempty" hcl:"retry_max_backoff,optional"`
	Timeout         string     `json:"timeout,omitempty" yaml:"timeout,omitempty" hcl:"timeout,optional"`
	InsecureHosts   []string   `json:"insecure_hosts,omitempty" yaml:"insecure_hosts,omitempty" hcl:"insecure_hosts,optional"`
	BasicAuth       *BasicAuth `json:"basic_auth,omitempty" yaml:"basic_auth,omitempty" hcl:"basic_auth,block"`
}

// BasicAuth answers HTTP basic challenges
type BasicAuth struct {
	Username string `json:"username" yaml:"username" hcl:"username"`
	Password string `json:"password" yaml:"password" hcl:"password"`
}

// 📄 ResourceConfig declares one destination and where its content comes from
type ResourceConfig struct {
	Name        string         `json:"name,omitempty" yaml:"name,omitempty" hcl:"name,label"`
	Destination string         `json:"destination" yaml:"destination" hcl:"destination"`
	Bundle      string         `json:"bundle,omitempty" yaml:"bundle,omitempty" hcl:"bundle,optional"`
	Remote      string         `json:"remote,omitempty" yaml:"remote,omitempty" hcl:"remote,optional"`
	Policy      string         `json:"policy,omitempty" yaml:"policy,omitempty" hcl:"policy,optional"`
	Compare     *CompareConfig `json:"compare,omitempty" yaml:"compare,omitempty" hcl:"compare,block"`
}

// CompareConfig configures the comparator of a manual_compare policy.
// An empty field compares raw bytes.
type CompareConfig struct {
	Format string `json:"format,omitempty" yaml:"format,omitempty" hcl:"format,optional"`
	Field  string `json:"field,omitempty" yaml:"field,omitempty" hcl:"field,optional"`
}

// 📦 BundleGlob declares every bundled file under Dir matching Pattern as a
// resource placed at the same relative path under Destination
type BundleGlob struct {
	Dir         string         `json:"dir" yaml:"dir" hcl:"dir"`
	Pattern     string         `json:"pattern" yaml:"pattern" hcl:"pattern"`
	Destination string         `json:"destination" yaml:"destination" hcl:"destination"`
	Ignore      []string       `json:"ignore,omitempty" yaml:"ignore,omitempty" hcl:"ignore,optional"`
	Policy      string         `json:"policy,omitempty" yaml:"policy,omitempty" hcl:"policy,optional"`
	Compare     *CompareConfig `json:"compare,omitempty" yaml:"compare,omitempty" hcl:"compare,block"`
}

// Location returns the path the config was loaded from
func (c *Config) Location() string { return c.location }

// 🔍 Validate checks the config without touching the file system
func (c *Config) Validate() error {
	if c.MaxConcurrency < 0 {
		return errors.Errorf("max_concurrency must not be negative")
	}
	if len(c.Resources) == 0 && len(c.BundleGlobs) == 0 {
		return errors.Errorf("at least one resource or bundle_glob is required")
	}

	if c.HTTP != nil {
		if err := c.HTTP.validate(); err != nil {
			return errors.Errorf("http: %w", err)
		}
	}

	names := make(map[string]bool)
	for i, r := range c.Resources {
		if r.Name != "" {
			if names[r.Name] {
				return errors.Errorf("resource %q is declared twice", r.Name)
			}
			names[r.Name] = true
		}
		if err := r.validate(); err != nil {
			return errors.Errorf("resource %d: %w", i, err)
		}
	}

	for i, g := range c.BundleGlobs {
		if err := g.validate(); err != nil {
			return errors.Errorf("bundle_glob %d: %w", i, err)
		}
	}
	return nil
}

func (h *HTTPConfig) validate() error {
	if h.RetryAttempts < 0 {
		return errors.Errorf("retry_attempts must not be negative")
	}
	for name, v := range map[string]string{
		"retry_backoff":     h.RetryBackoff,
		"retry_max_backoff": h.RetryMaxBackoff,
		"timeout":           h.Timeout,
	} {
		if _, err := parseDuration(v); err != nil {
			return errors.Errorf("%s: %w", name, err)
		}
	}
	if h.BasicAuth != nil && h.BasicAuth.Username == "" {
		return errors.Errorf("basic_auth.username is required")
	}
	return nil
}

func (r ResourceConfig) validate() error {
	if r.Destination == "" {
		return errors.Errorf("destination is required")
	}
	if r.Bundle == "" && r.Remote == "" {
		return errors.Errorf("%s: bundle or remote is required", r.Destination)
	}
	if _, err := policyFor(r.Policy, r.Compare); err != nil {
		return errors.Errorf("%s: %w", r.Destination, err)
	}
	return r.resource("").Validate()
}

func (g BundleGlob) validate() error {
	if g.Dir == "" {
		return errors.Errorf("dir is required")
	}
	if g.Pattern == "" {
		return errors.Errorf("pattern is required")
	}
	if g.Destination == "" {
		return errors.Errorf("destination is required")
	}
	if _, err := policyFor(g.Policy, g.Compare); err != nil {
		return err
	}
	return nil
}

// 🔑 Hash returns a stable digest of the config's declared content
func (c *Config) Hash() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", errors.Errorf("encoding config: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ManifestPath returns the manifest location, relative paths resolved against the config
func (c *Config) ManifestPath() string {
	if c.Manifest == "" {
		return c.resolve(DefaultManifest)
	}
	return c.resolve(c.Manifest)
}

// resolve makes p relative to the config's directory
func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.location == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.location), p)
}

func (r ResourceConfig) resource(base string) resource.Resource {
	bundle := r.Bundle
	if bundle != "" && base != "" && !filepath.IsAbs(bundle) {
		bundle = filepath.Join(base, bundle)
	}
	dst := r.Destination
	if base != "" && !filepath.IsAbs(dst) {
		dst = filepath.Join(base, dst)
	}

	switch {
	case bundle != "" && r.Remote != "":
		return resource.NewBoth(dst, bundle, r.Remote)
	case bundle != "":
		return resource.NewBundle(dst, bundle)
	default:
		return resource.NewRemote(dst, r.Remote)
	}
}

// policyFor builds the copy policy named by policy. A compare block implies manual_compare.
func policyFor(policy string, cmp *CompareConfig) (resource.CopyPolicy, error) {
	kind, err := resource.ParsePolicyKind(policy)
	if err != nil {
		return resource.CopyPolicy{}, err
	}
	if cmp != nil && policy == "" {
		kind = resource.PolicyManualCompare
	}

	if cmp != nil && kind != resource.PolicyManualCompare {
		return resource.CopyPolicy{}, errors.Errorf("compare is only valid with manual_compare")
	}

	switch kind {
	case resource.PolicyAlwaysCopy:
		return resource.AlwaysCopy, nil
	case resource.PolicyManualCompare:
		if cmp == nil || cmp.Field == "" {
			if cmp != nil && cmp.Format != "" && cmp.Format != string(resource.FormatBytes) {
				return resource.CopyPolicy{}, errors.Errorf("compare format %q needs a field", cmp.Format)
			}
			return resource.ManualCompare(nil), nil
		}
		format := resource.Format(cmp.Format)
		if format == "" {
			format = resource.FormatJSON
		}
		comparator, err := resource.FieldComparator(format, cmp.Field)
		if err != nil {
			return resource.CopyPolicy{}, err
		}
		return resource.ManualCompare(comparator), nil
	default:
		return resource.OnlyWhenNew, nil
	}
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.Errorf("duration %q must not be negative", s)
	}
	return d, nil
}
