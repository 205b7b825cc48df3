// Package project manages the persisted per-project registry record.
//
// One JSON record exists per project under the state directory, written
// atomically so concurrent readers never see a partial record.
package project

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors.
var (
	ErrNotFound     = errors.New("project not found")
	ErrEmptyName    = errors.New("project name cannot be empty")
	ErrEmptyRoot    = errors.New("project root path cannot be empty")
	ErrInvalidCount = errors.New("phase count must be >= 1")
	ErrCorrupt      = errors.New("corrupt project record")
)

// Status values for the project lifecycle.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusArchived  = "archived"
)

// Record is the persisted project registry entry.
type Record struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	RootPath    string    `json:"rootPath"`
	CreatedAt   time.Time `json:"createdAt"`
	Status      string    `json:"status"`
	Agents      []string  `json:"agentList"`
	PhaseCount  int       `json:"phaseCount"`
	Description string    `json:"description"`
}

// NewRecord creates an active project record with a generated UUID.
func NewRecord(name, rootPath, description string, phaseCount int, agents []string) (*Record, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if rootPath == "" {
		return nil, ErrEmptyRoot
	}
	if phaseCount < 1 {
		return nil, ErrInvalidCount
	}

	return &Record{
		ID:          uuid.New().String(),
		Name:        name,
		RootPath:    rootPath,
		CreatedAt:   time.Now().UTC(),
		Status:      StatusActive,
		Agents:      append([]string(nil), agents...),
		PhaseCount:  phaseCount,
		Description: description,
	}, nil
}
