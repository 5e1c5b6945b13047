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

package resource

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// FetchFunc returns the bytes behind a remote URL
type FetchFunc func(ctx context.Context, rawURL string) ([]byte, error)

// 📖 Decode decodes the model behind r, preferring the placed destination,
// then the bundled copy, then the remote copy. The first source that can be
// read is decoded; a decode error is returned as is and does not fall through.
func Decode[T any](ctx context.Context, r Resource, unmarshal func([]byte, any) error, fetch FetchFunc) (T, error) {
	logger := zerolog.Ctx(ctx).With().Str("destination", r.Destination).Logger()
	var model T

	data, from, err := readFirst(ctx, r, fetch)
	if err != nil {
		return model, err
	}

	logger.Debug().Str("from", from).Msg("decoding resource")
	if err := unmarshal(data, &model); err != nil {
		return model, errors.Errorf("decoding %s version of %s: %w", from, r.Destination, err)
	}
	return model, nil
}

func readFirst(ctx context.Context, r Resource, fetch FetchFunc) ([]byte, string, error) {
	if data, err := os.ReadFile(r.Destination); err == nil {
		return data, "local", nil
	}

	if path, ok := r.Source.BundlePath(); ok {
		if data, err := os.ReadFile(path); err == nil {
			return data, "bundle", nil
		}
	}

	raw, ok := r.Source.RemoteURL()
	if !ok {
		return nil, "", errors.Errorf("no readable source for %s", r.Destination)
	}
	if fetch == nil {
		return nil, "", errors.Errorf("no fetcher to read remote version of %s", r.Destination)
	}
	data, err := fetch(ctx, raw)
	if err != nil {
		return nil, "", errors.Errorf("fetching remote version of %s: %w", r.Destination, err)
	}
	return data, "remote", nil
}
