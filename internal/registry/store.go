package registry

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/mohammad-safakhou/dealwatch/internal/product"
)

// Store owns the on-disk product registry: a single JSON file mapping
// identity keys to records, with a .bak sibling holding the prior valid
// version and an advisory lock file for mutual exclusion. It is the only
// component allowed to read-modify-write the registry.
type Store struct {
	path       string
	bakPath    string
	historyCap int
	lock       *flock.Flock
	logger     *log.Logger
}

// MergeResult reports the outcome of merging one draft.
type MergeResult struct {
	Key   string `json:"key"`
	IsNew bool   `json:"is_new"`
}

// New creates a store rooted at path. The lock file lives next to the
// registry file and carries no payload.
func New(path string, historyCap int) *Store {
	if historyCap <= 0 {
		historyCap = product.DefaultHistoryCap
	}
	return &Store{
		path:       path,
		bakPath:    path + ".bak",
		historyCap: historyCap,
		lock:       flock.New(path + ".lock"),
		logger:     log.New(log.Writer(), "[STORE] ", log.LstdFlags),
	}
}

// Path returns the registry file location.
func (s *Store) Path() string { return s.path }

// Load reads the registry. On parse failure it falls back to the .bak copy;
// on total failure it returns an empty map. It never fails hard: a corrupt
// registry must not take down the ingest loop.
func (s *Store) Load() map[string]*product.Record {
	if m, err := readRegistry(s.path); err == nil {
		return m
	} else if !os.IsNotExist(err) {
		s.logger.Printf("registry %s unreadable (%v), trying backup", s.path, err)
	}
	if m, err := readRegistry(s.bakPath); err == nil {
		s.logger.Printf("recovered registry from %s", s.bakPath)
		return m
	}
	return map[string]*product.Record{}
}

func readRegistry(path string) (map[string]*product.Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := map[string]*product.Record{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// Persist writes the registry atomically: temp file in the same directory,
// fsync, live → .bak, temp → live. The live file is never observable in a
// partially written state and the previous valid version always survives a
// crash mid-write.
func (s *Store) Persist(m map[string]*product.Record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		tmp.Close()
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp registry: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		_ = os.Remove(s.bakPath)
		if err := os.Rename(s.path, s.bakPath); err != nil {
			return fmt.Errorf("rotate backup: %w", err)
		}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

// MergeAll is the locked unit of work: acquire the exclusive advisory lock,
// load the current state, fold every visible draft, persist once. Serialising
// load→merge→persist under one lock is the store's single-writer invariant.
func (s *Store) MergeAll(drafts []product.Draft) ([]MergeResult, error) {
	if err := s.lock.Lock(); err != nil {
		return nil, fmt.Errorf("acquire registry lock: %w", err)
	}
	defer s.lock.Unlock()

	m := s.Load()
	now := time.Now().UTC()

	var results []MergeResult
	for _, d := range drafts {
		if !d.Visible() {
			continue
		}
		key := product.ResolveKey(d)
		if rec, ok := m[key]; ok {
			rec.Fold(d, now, s.historyCap)
			results = append(results, MergeResult{Key: key})
		} else {
			m[key] = product.NewRecord(key, d, now)
			results = append(results, MergeResult{Key: key, IsNew: true})
		}
	}
	if len(results) == 0 {
		return nil, nil
	}

	if err := s.Persist(m); err != nil {
		return nil, err
	}
	return results, nil
}

// Merge folds a single draft and persists, under the same locked unit as
// MergeAll.
func (s *Store) Merge(d product.Draft) (MergeResult, error) {
	results, err := s.MergeAll([]product.Draft{d})
	if err != nil {
		return MergeResult{}, err
	}
	if len(results) == 0 {
		return MergeResult{}, fmt.Errorf("draft has no identifying fields")
	}
	return results[0], nil
}

// Get returns one record by key.
func (s *Store) Get(key string) (*product.Record, bool) {
	rec, ok := s.Load()[key]
	return rec, ok
}

// List returns all records ordered by key for stable output.
func (s *Store) List() []*product.Record {
	m := s.Load()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*product.Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// Sweep removes records whose last_seen is older than maxAge and persists
// the shrunken registry. Retention is opt-in; callers decide whether the
// registry is bounded at all.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	if err := s.lock.Lock(); err != nil {
		return 0, fmt.Errorf("acquire registry lock: %w", err)
	}
	defer s.lock.Unlock()

	m := s.Load()
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for key, rec := range m {
		if rec.LastSeen.Before(cutoff) {
			delete(m, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.Persist(m); err != nil {
		return 0, err
	}
	s.logger.Printf("sweep removed %d stale records (older than %s)", removed, maxAge)
	return removed, nil
}
