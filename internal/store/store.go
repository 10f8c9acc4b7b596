// Package store implements the flat JSON-backed workspace record store, the
// system's single source of truth for desired state.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/mufancom/remote-workspace/internal/errors"
	"github.com/mufancom/remote-workspace/internal/workspace"
)

// document is the on-disk shape of the store.
type document struct {
	Workspaces []workspace.Record `json:"workspaces"`
}

// Store is a durable collection of workspace records backed by a single JSON
// file. Every mutation flushes to disk before returning. The store provides
// no cross-mutation serialization; the daemon is the single writer.
type Store struct {
	path    string
	mu      sync.Mutex
	records []workspace.Record
}

// Open loads the store at path, creating an empty one if the file does not
// exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, errors.Wrap(errors.ErrStoreIO, "failed to read record store", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrStoreIO, "failed to parse record store", err)
	}
	s.records = doc.Workspaces

	return s, nil
}

// List returns a copy of all records.
func (s *Store) List() []workspace.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]workspace.Record, len(s.records))
	copy(records, s.records)
	return records
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (workspace.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.ID == id {
			return record, true
		}
	}
	return workspace.Record{}, false
}

// Push appends a record and flushes.
func (s *Store) Push(record workspace.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)
	return s.flush()
}

// PullWhere removes all records matching the predicate, flushes, and returns
// the removed records.
func (s *Store) PullWhere(pred func(workspace.Record) bool) ([]workspace.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept, removed []workspace.Record
	for _, record := range s.records {
		if pred(record) {
			removed = append(removed, record)
		} else {
			kept = append(kept, record)
		}
	}

	if len(removed) == 0 {
		return nil, nil
	}

	s.records = kept
	if err := s.flush(); err != nil {
		return nil, err
	}
	return removed, nil
}

// Update applies mutate to the record with the given id in place and
// flushes. It reports whether the record was found.
func (s *Store) Update(id string, mutate func(*workspace.Record)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID == id {
			mutate(&s.records[i])
			return true, s.flush()
		}
	}
	return false, nil
}

// flush writes the store atomically. Callers hold s.mu.
func (s *Store) flush() error {
	doc := document{Workspaces: s.records}
	if doc.Workspaces == nil {
		doc.Workspaces = []workspace.Record{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrStoreIO, "failed to serialize record store", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(errors.ErrStoreIO, "failed to create store directory", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrStoreIO, "failed to write record store", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(errors.ErrStoreIO, "failed to replace record store", err)
	}
	return nil
}
