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

// Package github resolves github://owner/repo@ref/path references to raw
// download urls through the contents api.
package github

import (
	"context"
	"net/url"
	"os"
	"strings"

	"github.com/google/go-github/v60/github"
	"github.com/rs/zerolog"
	"github.com/walteh/fetchrc/pkg/remote"
	"gitlab.com/tozd/go/errors"
)

// Scheme is the url scheme this package resolves
const Scheme = "github"

// 🎯 Resolver implements remote.Resolver for GitHub
type Resolver struct {
	client *github.Client
}

var _ remote.Resolver = (*Resolver)(nil)

// 🏭 New creates a resolver using client
func New(client *github.Client) *Resolver {
	if client == nil {
		client = github.NewClient(nil)
	}
	return &Resolver{client: client}
}

// NewFromEnv creates a resolver authenticated with GITHUB_TOKEN when it is set
func NewFromEnv(ctx context.Context) *Resolver {
	client := github.NewClient(nil)
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		client = client.WithAuthToken(token)
	} else {
		zerolog.Ctx(ctx).Debug().Msg("GITHUB_TOKEN not set, using unauthenticated github client")
	}
	return &Resolver{client: client}
}

func (r *Resolver) Scheme() string { return Scheme }

// Ref is a parsed github:// reference
type Ref struct {
	Owner string
	Repo  string
	Ref   string
	Path  string
}

// 🔍 ParseRef parses github://owner/repo@ref/path. The ref is optional.
func ParseRef(u *url.URL) (Ref, error) {
	if !strings.EqualFold(u.Scheme, Scheme) {
		return Ref{}, errors.Errorf("not a github reference: %s", u)
	}

	owner := u.Host
	repoAndRef, path, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	repo, ref, _ := strings.Cut(repoAndRef, "@")

	if owner == "" || repo == "" || path == "" {
		return Ref{}, errors.Errorf("invalid github reference %s, want github://owner/repo@ref/path", u)
	}
	return Ref{Owner: owner, Repo: repo, Ref: ref, Path: path}, nil
}

// 📥 Resolve returns the raw download url of the referenced file
func (r *Resolver) Resolve(ctx context.Context, u *url.URL) (string, error) {
	ref, err := ParseRef(u)
	if err != nil {
		return "", err
	}

	var opts *github.RepositoryContentGetOptions
	if ref.Ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref.Ref}
	}

	file, dir, _, err := r.client.Repositories.GetContents(ctx, ref.Owner, ref.Repo, ref.Path, opts)
	if err != nil {
		return "", errors.Errorf("getting contents of %s/%s/%s: %w", ref.Owner, ref.Repo, ref.Path, err)
	}
	if file == nil || dir != nil {
		return "", errors.Errorf("%s in %s/%s is a directory, not a file", ref.Path, ref.Owner, ref.Repo)
	}

	download := file.GetDownloadURL()
	if download == "" {
		return "", errors.Errorf("no download url for %s in %s/%s", ref.Path, ref.Owner, ref.Repo)
	}
	return download, nil
}
