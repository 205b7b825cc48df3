package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Manager persists project records as JSON files under a base directory.
type Manager struct {
	mu  sync.RWMutex
	dir string
}

// NewManager creates a manager rooted at dir.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating project directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// recordPath returns the record file for a project name.
func (m *Manager) recordPath(name string) string {
	return filepath.Join(m.dir, name+".json")
}

// Save writes a project record atomically.
func (m *Manager) Save(rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling project record: %w", err)
	}

	path := m.recordPath(rec.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing project record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming project record: %w", err)
	}
	return nil
}

// Get reads one project record by name.
func (m *Manager) Get(name string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := os.ReadFile(m.recordPath(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading project record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	return &rec, nil
}

// List returns all project names, sorted.
func (m *Manager) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("reading project directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes a project record. Removing an absent record is a no-op.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := os.Remove(m.recordPath(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing project record: %w", err)
	}
	return nil
}
