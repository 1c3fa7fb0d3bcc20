// Package marker persists the failover decisions taken during a run so that
// later retries, and later processes in the same run directory, do not repeat
// a degrade that was already attempted.
package marker

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Name identifies one durable marker.
type Name string

const (
	// SSESkip records that the run was retried without the sse define.
	SSESkip Name = ".sse_failover"
	// ArchFailover records that the run was retried with x64 inverted.
	ArchFailover Name = ".x64_failover"
)

// Store answers presence questions and creates markers. Implementations must
// never cache Exists results.
type Store interface {
	Exists(name Name) bool
	Create(name Name) error
}

// FileStore keeps markers as zero-byte files in Dir.
type FileStore struct {
	Dir string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) FileStore {
	return FileStore{Dir: dir}
}

// Path returns the file backing name.
func (s FileStore) Path(name Name) string {
	return filepath.Join(s.Dir, string(name))
}

// Exists stats the marker file.
func (s FileStore) Exists(name Name) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Create touches the marker file. Creating an existing marker is a no-op.
func (s FileStore) Create(name Name) error {
	if s.Exists(name) {
		return nil
	}
	if s.Dir != "" {
		if err := os.MkdirAll(s.Dir, 0o755); err != nil {
			return fmt.Errorf("create marker dir: %w", err)
		}
	}
	file, err := os.OpenFile(s.Path(name), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create marker %s: %w", name, err)
	}
	return file.Close()
}

// MemoryStore is an in-process Store for tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	present map[Name]struct{}
}

// NewMemoryStore returns a store with the given markers already present.
func NewMemoryStore(initial ...Name) *MemoryStore {
	m := &MemoryStore{present: make(map[Name]struct{})}
	for _, name := range initial {
		m.present[name] = struct{}{}
	}
	return m
}

func (m *MemoryStore) Exists(name Name) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.present[name]
	return ok
}

func (m *MemoryStore) Create(name Name) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.present[name] = struct{}{}
	return nil
}
