// Package phase implements the per-agent and per-project phase state
// machine that decides when a project advances.
//
// Per (project, agent) states move pending -> in_progress -> completed,
// derived purely from checklist scanner output. The project advances past
// its current ordinal only when every agent with a non-empty task set for
// that ordinal shows completed. Advancement is idempotent: an optimistic
// guard re-verifies the current ordinal immediately before writing, so
// two concurrent observers cannot both advance; the loser's write is
// discarded, never retried.
package phase

import (
	"time"

	"github.com/fyrsmithlabs/swarmd/internal/checklist"
)

// StatusReady is the per-agent status written when a project advances and
// the agent has not yet started the new phase. The first checklist
// re-evaluation replaces it with a scanner-derived status.
const StatusReady checklist.Status = "ready"

// StatusRecord is the persisted per-agent status artifact.
type StatusRecord struct {
	Agent           string           `json:"agent"`
	CurrentPhase    int              `json:"currentPhaseOrdinal"`
	TotalPhases     int              `json:"totalPhases"`
	CompletedPhases []int            `json:"completedPhaseOrdinals"`
	Status          checklist.Status `json:"status"`
	TasksCompleted  int              `json:"tasksCompleted"`
	TasksTotal      int              `json:"tasksTotal"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// ProjectPhase is the persisted project-level phase record guarded by the
// optimistic advance check.
type ProjectPhase struct {
	CurrentPhase    int       `json:"currentPhaseOrdinal"`
	TotalPhases     int       `json:"totalPhases"`
	CompletedPhases []int     `json:"completedPhaseOrdinals"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Final reports whether the project sits at its last phase.
func (p ProjectPhase) Final() bool {
	return p.CurrentPhase >= p.TotalPhases
}

// ComputeGlobalPhaseStatus is the pure advance predicate.
//
// It returns true when every supplied record shows completed for the
// given ordinal. A nil record (missing or unreadable artifact) counts as
// not completed: the conservative default. Agents with zero tasks for the
// ordinal are vacuously complete and never block the project. An empty
// input never advances.
func ComputeGlobalPhaseStatus(records []*StatusRecord, ordinal int) bool {
	if len(records) == 0 {
		return false
	}
	for _, rec := range records {
		if rec == nil {
			return false
		}
		if rec.TasksTotal == 0 {
			continue
		}
		if rec.CurrentPhase != ordinal || rec.Status != checklist.StatusCompleted {
			return false
		}
	}
	return true
}
