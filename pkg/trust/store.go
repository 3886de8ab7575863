package trust

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// reportFileName is the persisted trust report inside the base directory.
const reportFileName = ".known-clients"

// Store errors.
var (
	// ErrNotADirectory is returned when the base path exists but is not
	// a directory.
	ErrNotADirectory = errors.New("trust store path is not a directory")

	// ErrCorruptReport is returned when the persisted trust report cannot
	// be parsed. A corrupt report is a hard failure: it must not silently
	// degrade to an empty or permissive trust set.
	ErrCorruptReport = errors.New("corrupt trust report")
)

// report is the on-disk shape of the trust store: a full-rewrite,
// human-readable JSON document mapping server identity to fingerprint.
type report struct {
	Entries map[string]string `json:"entries"`
}

// Store is a persisted mapping from server identity (DNS-name form) to
// the approved certificate fingerprint for that identity. One fingerprint
// per identity; re-trusting overwrites, never merges.
//
// Safe for concurrent use. The file is rewritten wholesale on every
// mutation and assumes a single-writer process.
type Store struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
}

// NewStore opens the trust store rooted at baseDir, creating the
// directory when absent and loading an existing report when present.
func NewStore(baseDir string) (*Store, error) {
	info, err := os.Stat(baseDir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(baseDir, 0700); err != nil {
			return nil, fmt.Errorf("create trust directory: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("stat trust directory: %w", err)
	case !info.IsDir():
		return nil, ErrNotADirectory
	}

	s := &Store{
		path:    filepath.Join(baseDir, reportFileName),
		entries: make(map[string]string),
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read trust report: %w", err)
	}

	var r report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptReport, err)
	}
	if r.Entries != nil {
		s.entries = r.Entries
	}
	return s, nil
}

// Trust records fingerprint as the approved identity for every domain in
// domains, overwriting any previous entry, and persists the whole store
// before returning. Trust is not considered granted until the write
// succeeds.
func (s *Store) Trust(domains []string, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, domain := range domains {
		s.entries[domain] = fingerprint
	}
	return s.save()
}

// Fingerprint returns the approved fingerprint for identity, if any.
func (s *Store) Fingerprint(identity string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp, ok := s.entries[identity]
	return fp, ok
}

// Entries returns a point-in-time copy of the trust map.
func (s *Store) Entries() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.entries))
	for identity, fp := range s.entries {
		out[identity] = fp
	}
	return out
}

// save rewrites the report file from the current entries.
// Callers must hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(report{Entries: s.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode trust report: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write trust report: %w", err)
	}
	return nil
}
