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

package status

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/walteh/fetchrc/pkg/placement"
	"gitlab.com/tozd/go/errors"
)

// 📊 FileStatus represents what a run did to one destination
type FileStatus int

const (
	StatusUnknown   FileStatus = iota
	StatusNew                  // destination was created
	StatusModified             // destination was replaced
	StatusUnchanged            // comparator kept the current file
	StatusSkipped              // only_when_new and the destination existed
	StatusDeleted              // destination was removed
	StatusFailed               // the operation reported an error
	StatusCancelled            // the run was cancelled before this finished
)

// String returns a string representation of FileStatus
func (s FileStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusModified:
		return "modified"
	case StatusUnchanged:
		return "unchanged"
	case StatusSkipped:
		return "skipped"
	case StatusDeleted:
		return "deleted"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// FromOutcome maps a placement outcome to a status
func FromOutcome(o placement.Outcome) FileStatus {
	switch o {
	case placement.OutcomeCreated:
		return StatusNew
	case placement.OutcomeReplaced:
		return StatusModified
	case placement.OutcomeKept:
		return StatusUnchanged
	case placement.OutcomeSkipped:
		return StatusSkipped
	default:
		return StatusUnknown
	}
}

// 📄 Entry contains what is known about one destination after a run
type Entry struct {
	Destination string     // where the resource lives
	Source      string     // bundle path or remote url actually used
	Status      FileStatus // current status
	Size        int64      // placed size in bytes
	Checksum    string     // content hash of the placed file
	Fallback    bool       // remote failed and the bundle was used
	Error       error      // any error associated with this resource
}

// 📈 Tracker records per-resource status and run progress. It is safe for
// concurrent use.
type Tracker struct {
	formatter FileFormatter

	mu      sync.RWMutex
	entries map[string]Entry

	total     int
	processed int
}

// 🏭 NewTracker creates an empty tracker
func NewTracker(formatter FileFormatter) *Tracker {
	if formatter == nil {
		formatter = NewDefaultFileFormatter()
	}
	return &Tracker{
		formatter: formatter,
		entries:   make(map[string]Entry),
	}
}

// Checksum returns the hex sha256 of content
func Checksum(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// Track records entry, replacing any earlier entry for its destination
func (t *Tracker) Track(ctx context.Context, entry Entry) {
	t.mu.Lock()
	t.entries[entry.Destination] = entry
	t.mu.Unlock()

	zerolog.Ctx(ctx).Debug().
		Err(entry.Error).
		Str("destination", entry.Destination).
		Str("status", entry.Status.String()).
		Msg(t.formatter.FormatEntry(entry))
}

// Get returns the entry for destination
func (t *Tracker) Get(destination string) (Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.entries[destination]
	if !ok {
		return Entry{}, errors.Errorf("resource not tracked: %s", destination)
	}
	return entry, nil
}

// List returns every entry ordered by destination
func (t *Tracker) List() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Destination < entries[j].Destination })
	return entries
}

// Counts returns how many entries hold each status
func (t *Tracker) Counts() map[FileStatus]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := make(map[FileStatus]int)
	for _, e := range t.entries {
		counts[e.Status]++
	}
	return counts
}

// StartOperation resets progress for a run of total resources
func (t *Tracker) StartOperation(ctx context.Context, total int) {
	t.mu.Lock()
	t.total = total
	t.processed = 0
	t.mu.Unlock()

	zerolog.Ctx(ctx).Debug().Int("total", total).Msg(t.formatter.FormatProgress(0, total))
}

// Advance marks one more resource as processed
func (t *Tracker) Advance(ctx context.Context) {
	t.mu.Lock()
	t.processed++
	processed, total := t.processed, t.total
	t.mu.Unlock()

	zerolog.Ctx(ctx).Debug().
		Int("processed", processed).
		Int("total", total).
		Msg(t.formatter.FormatProgress(processed, total))
}

// Progress returns processed and total counts
func (t *Tracker) Progress() (processed, total int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.processed, t.total
}
