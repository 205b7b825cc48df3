// Package contextstore implements the versioned, diffable, broadcastable
// project-wide shared context.
//
// Each project owns one SharedContext: a key-value payload with a
// monotonically increasing version. Agents publish partial updates that
// shallow-merge by top-level key, last writer wins. Subscribers receive
// diffs rather than full payloads; the difference between the two is the
// token saving the store accounts for.
package contextstore

import (
	"errors"
	"time"
)

// Errors for context store operations.
var (
	ErrProjectNotFound = errors.New("shared context not found")
	ErrEmptyAgentID    = errors.New("agent id cannot be empty")
	ErrDiffOutOfOrder  = errors.New("diff out of order for base version")
)

// SharedContext is an immutable snapshot of a project's context.
type SharedContext struct {
	ProjectID string         `json:"projectId"`
	Version   int64          `json:"version"`
	Payload   map[string]any `json:"payload"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Diff describes the change between two consecutive context versions.
//
// A diff is valid only against the exact version it was computed from:
// appliers must reject a diff whose BaseVersion does not match their
// current version.
type Diff struct {
	ProjectID     string         `json:"projectId"`
	BaseVersion   int64          `json:"baseVersion"`
	TargetVersion int64          `json:"targetVersion"`
	Changed       []string       `json:"changedKeys"`
	Removed       []string       `json:"removedKeys"`

	// Values carries the new values for changed keys so subscribers can
	// apply the diff without refetching the full payload.
	Values map[string]any `json:"values"`
}

// UpdateOptions controls diff computation and broadcast for an update.
type UpdateOptions struct {
	// CreateDiff computes the changed/removed key sets and enables
	// token-saving accounting for this update.
	CreateDiff bool

	// Broadcast delivers the diff to subscribers instead of re-sending
	// the full payload. Requires CreateDiff.
	Broadcast bool
}

// UpdateResult reports the outcome of a successful update.
type UpdateResult struct {
	NewVersion  int64 `json:"newVersion"`
	TokensSaved int   `json:"tokensSaved"`
	Diff        *Diff `json:"diff,omitempty"`
}

// OptimizationRecord captures the token accounting of one update.
type OptimizationRecord struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	AgentID   string    `json:"agentId"`
	Baseline  int       `json:"baselineTokens"`
	Optimized int       `json:"optimizedTokens"`
	Saved     int       `json:"tokensSaved"`
	Timestamp time.Time `json:"timestamp"`
}

// Mirror is a subscriber-side replica of a shared context, advanced by
// applying diffs in order.
type Mirror struct {
	Version int64
	Payload map[string]any
}

// NewMirror creates an empty mirror at version 0.
func NewMirror() *Mirror {
	return &Mirror{Payload: make(map[string]any)}
}

// Apply advances the mirror by one diff.
//
// A diff presented out of order relative to its declared base version is
// rejected; the caller should refetch the full context instead.
func (m *Mirror) Apply(d Diff) error {
	if d.BaseVersion != m.Version {
		return ErrDiffOutOfOrder
	}
	for _, key := range d.Removed {
		delete(m.Payload, key)
	}
	for _, key := range d.Changed {
		m.Payload[key] = d.Values[key]
	}
	m.Version = d.TargetVersion
	return nil
}
