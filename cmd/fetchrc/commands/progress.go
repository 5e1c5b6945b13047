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


package commands

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"

	"github.com/walteh/fetchrc/pkg/resource"
)

// progress drives a terminal bar counting finished downloads. update runs on
// the fetch queue goroutine only.
type progress struct {
	bar  *pterm.ProgressbarPrinter
	done map[string]bool
}

func newProgress(ctx context.Context, items []resource.Item, disabled bool) *progress {
	p := &progress{done: map[string]bool{}}
	if disabled {
		return p
	}

	remotes := distinctRemotes(items)
	if remotes == 0 {
		return p
	}

	bar, err := pterm.DefaultProgressbar.
		WithTotal(remotes).
		WithTitle("downloading").
		WithRemoveWhenDone(true).
		Start()
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("progress bar unavailable")
		return p
	}
	p.bar = bar
	return p
}

// distinctRemotes counts remote urls once each, since progress is keyed by url
func distinctRemotes(items []resource.Item) int {
	seen := map[string]bool{}
	for _, item := range items {
		if u, ok := item.Source.RemoteURL(); ok {
			seen[u] = true
		}
	}
	return len(seen)
}

func (p *progress) update(url string, ratio float32) {
	if p.bar == nil || p.done[url] {
		return
	}
	if ratio >= 1 {
		p.done[url] = true
		p.bar.Increment()
		return
	}
	p.bar.UpdateTitle(url)
}

func (p *progress) stop() {
	if p.bar == nil {
		return
	}
	_, _ = p.bar.Stop()
}
