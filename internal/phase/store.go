package phase

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCorruptRecord marks a status artifact that exists but cannot be
// parsed. Callers treat it exactly like a missing record: no progress.
var ErrCorruptRecord = errors.New("corrupt status record")

// Store persists status records and the project phase record as JSON
// files under a state directory. Writes are atomic (tmp + rename).
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// StatusPath returns the status artifact path for an agent.
func (s *Store) StatusPath(agentName string) string {
	return filepath.Join(s.dir, "status", agentName+".json")
}

// phasePath returns the project phase record path.
func (s *Store) phasePath() string {
	return filepath.Join(s.dir, "phase.json")
}

// LoadStatus reads an agent's status record.
//
// Returns os.ErrNotExist when no artifact exists and ErrCorruptRecord
// when it cannot be parsed; both are treated as "not completed" upstream.
func (s *Store) LoadStatus(agentName string) (*StatusRecord, error) {
	data, err := os.ReadFile(s.StatusPath(agentName))
	if err != nil {
		return nil, err
	}

	var rec StatusRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, agentName, err)
	}
	return &rec, nil
}

// SaveStatus writes an agent's status record atomically.
func (s *Store) SaveStatus(rec *StatusRecord) error {
	return s.writeJSON(s.StatusPath(rec.Agent), rec)
}

// LoadPhase reads the project phase record.
func (s *Store) LoadPhase() (*ProjectPhase, error) {
	data, err := os.ReadFile(s.phasePath())
	if err != nil {
		return nil, err
	}

	var p ProjectPhase
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: phase record: %v", ErrCorruptRecord, err)
	}
	return &p, nil
}

// SavePhase writes the project phase record atomically.
func (s *Store) SavePhase(p *ProjectPhase) error {
	return s.writeJSON(s.phasePath(), p)
}

func (s *Store) writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}
