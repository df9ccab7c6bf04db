package usage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"rugviz-be/pkg/logger"
)

// FileStore persists the usage table as a single flat JSON object mapping
// identity keys to counts. All access goes through View/Update, which hold an
// in-process mutex; writes are staged to a temp file and renamed into place
// so a crash never leaves a half-written table. The deployment runs a single
// process, so the mutex is the full critical section for the file (see
// DESIGN.md for the multi-process story).
type FileStore struct {
	mu   sync.Mutex
	path string
	log  *logger.Logger
}

// NewFileStore creates a file store at path, creating the parent directory
// and an empty table if nothing exists yet.
func NewFileStore(path string, log *logger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
			return nil, err
		}
	}

	return &FileStore{path: path, log: log}, nil
}

// View runs fn against a snapshot of the table under the store lock.
// Mutations made by fn are discarded.
func (s *FileStore) View(fn func(table map[string]int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.read())
}

// Update runs fn against the table under the store lock and persists the
// result when fn reports the table dirty. A persistence failure is returned
// to the caller but the in-memory mutation has already been observed by fn,
// letting callers fail open.
func (s *FileStore) Update(fn func(table map[string]int) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.read()
	if !fn(table) {
		return nil
	}
	return s.write(table)
}

// read loads the table, treating missing or corrupt content as an empty
// table. The ledger must never fail a request because of bad persisted
// state.
func (s *FileStore) read() map[string]int {
	table := make(map[string]int)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithError(err).Warn("Failed to read usage store, starting with empty table")
		}
		return table
	}

	if err := json.Unmarshal(data, &table); err != nil {
		s.log.WithError(err).Warn("Usage store is corrupt, starting with empty table")
		return make(map[string]int)
	}

	return table
}

// write persists the table atomically: marshal, write a sibling temp file,
// fsync, rename over the store path.
func (s *FileStore) write(table map[string]int) error {
	data, err := json.Marshal(table)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".usage-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, s.path)
}
