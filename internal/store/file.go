package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// globalKey is the reserved counter name holding the day's total. It lives
// inside the same per-day map as the sender counters so one write persists
// both.
const globalKey = "global_total"

// FileQuotaStore keeps a day-keyed table of counters in a single JSON file.
// Every increment rewrites the whole trailing window through a temp file and
// rename, so a crash leaves either the previous table or the new one on
// disk, never a half-written file. An unreadable file degrades to an empty
// table: an operator restarting the system should not be blocked by a
// corrupt state file.
type FileQuotaStore struct {
	mu    sync.Mutex
	path  string
	table map[string]map[string]int
}

// NewFileQuotaStore opens (or lazily creates) the quota file at path.
func NewFileQuotaStore(path string) *FileQuotaStore {
	s := &FileQuotaStore{path: path, table: map[string]map[string]int{}}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &s.table)
	}
	if s.table == nil {
		s.table = map[string]map[string]int{}
	}
	return s
}

func (s *FileQuotaStore) Used(senderID, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table[day][senderID], nil
}

func (s *FileQuotaStore) GlobalUsed(day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table[day][globalKey], nil
}

func (s *FileQuotaStore) Increment(senderID, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.table[day]
	if rec == nil {
		rec = map[string]int{}
		s.table[day] = rec
	}
	rec[senderID]++
	rec[globalKey]++

	prune(s.table, day)
	return writeJSON(s.path, s.table)
}

// FileDedupStore keeps a day-keyed table of lead IDs already messaged, with
// the same rewrite/retention policy as FileQuotaStore.
type FileDedupStore struct {
	mu    sync.Mutex
	path  string
	table map[string][]string
	sets  map[string]map[string]struct{}
}

// NewFileDedupStore opens (or lazily creates) the sent-leads file at path.
func NewFileDedupStore(path string) *FileDedupStore {
	s := &FileDedupStore{
		path:  path,
		table: map[string][]string{},
		sets:  map[string]map[string]struct{}{},
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &s.table)
	}
	if s.table == nil {
		s.table = map[string][]string{}
	}
	for day, ids := range s.table {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		s.sets[day] = set
	}
	return s
}

func (s *FileDedupStore) HasSent(leadID, day string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sets[day][leadID]
	return ok, nil
}

func (s *FileDedupStore) MarkSent(leadID, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sets[day][leadID]; ok {
		return nil
	}
	if s.sets[day] == nil {
		s.sets[day] = map[string]struct{}{}
	}
	s.sets[day][leadID] = struct{}{}
	s.table[day] = append(s.table[day], leadID)

	prune(s.table, day)
	for d := range s.sets {
		if _, kept := s.table[d]; !kept {
			delete(s.sets, d)
		}
	}
	return writeJSON(s.path, s.table)
}

func prune[V any](table map[string]V, day string) {
	min := cutoff(day)
	for d := range table {
		if d < min {
			delete(table, d)
		}
	}
}

// writeJSON persists v atomically: write a sibling temp file, fsync, rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
