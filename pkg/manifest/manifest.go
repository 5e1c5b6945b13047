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

// Package manifest persists a record of every destination a fetch placed.
package manifest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"go.etcd.io/bbolt"
)

const bucketName = "placements"

// 📄 Entry records one placement
type Entry struct {
	Destination string    `json:"destination"`
	Source      string    `json:"source"`
	Policy      string    `json:"policy"`
	Checksum    string    `json:"checksum"`
	Size        int64     `json:"size"`
	Fallback    bool      `json:"fallback,omitempty"`
	RunID       string    `json:"run_id"`
	PlacedAt    time.Time `json:"placed_at"`
}

// Recorder receives placements as a run makes them
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	Forget(ctx context.Context, destination string) error
}

// 💾 Store is a bbolt backed Recorder
type Store struct {
	db *bbolt.DB
}

var _ Recorder = (*Store)(nil)

// Open opens or creates the manifest database at path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Errorf("creating manifest directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Errorf("opening manifest %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Errorf("creating manifest bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return errors.WithStack(s.db.Close())
}

// Record saves entry, replacing any record for the same destination
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.Destination == "" {
		return errors.Errorf("manifest entry has no destination")
	}
	if entry.PlacedAt.IsZero() {
		entry.PlacedAt = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Errorf("encoding manifest entry: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(entry.Destination), data)
	})
	if err != nil {
		return errors.Errorf("recording %s: %w", entry.Destination, err)
	}

	zerolog.Ctx(ctx).Trace().Str("destination", entry.Destination).Str("run_id", entry.RunID).Msg("recorded placement")
	return nil
}

// Forget deletes the record for destination. A missing record is not an error.
func (s *Store) Forget(ctx context.Context, destination string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(destination))
	})
	if err != nil {
		return errors.Errorf("forgetting %s: %w", destination, err)
	}
	return nil
}

// Get returns the record for destination and whether it exists
func (s *Store) Get(destination string) (Entry, bool, error) {
	var entry Entry
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(destination))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &entry)
	})
	if err != nil {
		return Entry{}, false, errors.Errorf("reading %s: %w", destination, err)
	}
	return entry, found, nil
}

// List returns every record ordered by destination
func (s *Store) List() ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return errors.Errorf("decoding record %s: %w", string(k), err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Errorf("listing manifest: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Destination < entries[j].Destination })
	return entries, nil
}
