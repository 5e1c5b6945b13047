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


package opts

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fetchrc/pkg/config"
	"github.com/walteh/fetchrc/pkg/fsys"
	"github.com/walteh/fetchrc/pkg/log"
	"github.com/walteh/fetchrc/pkg/manifest"
)

// RootOpts contains shared options used by all commands
type RootOpts struct {
	Config     *config.Config
	UserLogger *log.Logger
	FS         fsys.FileSystem
}

// OpenManifest opens the manifest the config points at. The caller closes it.
func (o *RootOpts) OpenManifest(ctx context.Context) (*manifest.Store, error) {
	if o.Config == nil {
		return nil, errors.Errorf("no config loaded")
	}
	path := o.Config.ManifestPath()
	store, err := manifest.Open(path)
	if err != nil {
		return nil, errors.Errorf("opening manifest: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("path", path).Msg("opened manifest")
	return store, nil
}
