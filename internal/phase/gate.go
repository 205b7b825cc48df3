package phase

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/swarmd/internal/checklist"
	"github.com/fyrsmithlabs/swarmd/internal/distributor"
)

// Gate drives phase state for one project.
//
// All cross-agent awareness comes from re-reading persisted artifacts:
// checklists under the checklist directory and status records in the
// store. The gate never signals another agent process directly.
type Gate struct {
	store        *Store
	checklistDir string
	logger       *zap.Logger

	// advanceMu serializes advance attempts within this process; the
	// optimistic re-read of the phase record handles racing observers
	// in other processes.
	advanceMu sync.Mutex
}

// NewGate creates a gate over the given store and checklist directory.
func NewGate(store *Store, checklistDir string, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: store, checklistDir: checklistDir, logger: logger}
}

// Init seeds the project phase record at ordinal 1 and a ready status
// record per agent with counters taken from the phase-1 checklists.
func (g *Gate) Init(totalPhases int, agents []string) error {
	if totalPhases < 1 {
		return fmt.Errorf("total phases must be >= 1, got %d", totalPhases)
	}

	now := time.Now().UTC()
	p := &ProjectPhase{
		CurrentPhase:    1,
		TotalPhases:     totalPhases,
		CompletedPhases: []int{},
		UpdatedAt:       now,
	}
	if err := g.store.SavePhase(p); err != nil {
		return err
	}

	for _, name := range agents {
		total := g.phaseTaskTotal(name, 1)
		rec := &StatusRecord{
			Agent:           name,
			CurrentPhase:    1,
			TotalPhases:     totalPhases,
			CompletedPhases: []int{},
			Status:          StatusReady,
			TasksTotal:      total,
			UpdatedAt:       now,
		}
		if err := g.store.SaveStatus(rec); err != nil {
			return err
		}
	}
	return nil
}

// Refresh re-evaluates one agent's checklist for the current phase and
// persists the derived status record.
//
// A missing checklist yields zero progress, never an error: absence of
// evidence is treated as no progress. An unreadable checklist is
// different: the last persisted record stands untouched, so corrupt
// data can never turn into completion.
func (g *Gate) Refresh(agentName string) (*StatusRecord, error) {
	p, err := g.store.LoadPhase()
	if err != nil {
		return nil, fmt.Errorf("loading phase record: %w", err)
	}

	text, err := checklist.ReadFile(distributor.ChecklistPath(g.checklistDir, agentName, p.CurrentPhase))
	if err != nil {
		// ReadFile maps a missing artifact to empty text, so this is a
		// real read failure on an existing path.
		g.logger.Warn("Unreadable checklist, keeping last known status",
			zap.String("agent", agentName),
			zap.Int("phase", p.CurrentPhase),
			zap.Error(err))
		rec, loadErr := g.store.LoadStatus(agentName)
		if loadErr != nil {
			return nil, fmt.Errorf("reading checklist for %s: %w", agentName, err)
		}
		return rec, nil
	}
	progress := checklist.PhaseProgress(text)

	rec, err := g.store.LoadStatus(agentName)
	if err != nil {
		// Missing or corrupt record: rebuild from scratch.
		rec = &StatusRecord{
			Agent:           agentName,
			TotalPhases:     p.TotalPhases,
			CompletedPhases: append([]int(nil), p.CompletedPhases...),
		}
	}

	rec.CurrentPhase = p.CurrentPhase
	rec.TotalPhases = p.TotalPhases
	rec.Status = progress.Status
	rec.TasksCompleted = progress.CompletedTasks
	rec.TasksTotal = progress.TotalTasks
	rec.UpdatedAt = time.Now().UTC()

	if err := g.store.SaveStatus(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CheckAdvance re-reads every agent's persisted status and advances the
// project when the global predicate holds for the current ordinal.
//
// Returns true when this call performed the advance. Invoking it again
// after a successful advance is a no-op: the ordinal has moved, so the
// predicate is evaluated against the next phase's artifacts.
func (g *Gate) CheckAdvance(agents []string) (bool, error) {
	p, err := g.store.LoadPhase()
	if err != nil {
		return false, fmt.Errorf("loading phase record: %w", err)
	}

	records := make([]*StatusRecord, 0, len(agents))
	for _, name := range agents {
		rec, err := g.store.LoadStatus(name)
		if err != nil {
			if !os.IsNotExist(err) {
				g.logger.Warn("Unreadable status record treated as not completed",
					zap.String("agent", name),
					zap.Error(err))
			}
			records = append(records, nil)
			continue
		}
		records = append(records, rec)
	}

	if !ComputeGlobalPhaseStatus(records, p.CurrentPhase) {
		return false, nil
	}
	return g.advance(p.CurrentPhase, agents)
}

// advance performs the guarded phase transition.
func (g *Gate) advance(from int, agents []string) (bool, error) {
	g.advanceMu.Lock()
	defer g.advanceMu.Unlock()

	// Optimistic guard: re-verify the ordinal immediately before the
	// write. A racing observer that already advanced wins; this write
	// is discarded, never retried.
	p, err := g.store.LoadPhase()
	if err != nil {
		return false, fmt.Errorf("re-reading phase record: %w", err)
	}
	if p.CurrentPhase != from {
		g.logger.Debug("Advance discarded, ordinal moved",
			zap.Int("expected", from),
			zap.Int("current", p.CurrentPhase))
		return false, nil
	}
	if containsOrdinal(p.CompletedPhases, from) {
		// Final phase already recorded; repeated trigger is a no-op.
		return false, nil
	}

	p.CompletedPhases = append(p.CompletedPhases, from)
	atFinal := p.Final()
	if !atFinal {
		p.CurrentPhase++
	}
	p.UpdatedAt = time.Now().UTC()

	if err := g.store.SavePhase(p); err != nil {
		return false, fmt.Errorf("saving phase record: %w", err)
	}

	g.logger.Info("Project advanced",
		zap.Int("completed_phase", from),
		zap.Int("current_phase", p.CurrentPhase))

	if atFinal {
		// No next phase to seed; agent records keep their completed
		// final-phase state.
		return true, nil
	}

	// Reset agents for the next phase with counters seeded from its
	// checklists.
	now := time.Now().UTC()
	for _, name := range agents {
		rec, err := g.store.LoadStatus(name)
		if err != nil {
			rec = &StatusRecord{Agent: name}
		}
		rec.CurrentPhase = p.CurrentPhase
		rec.TotalPhases = p.TotalPhases
		rec.CompletedPhases = append([]int(nil), p.CompletedPhases...)
		rec.Status = StatusReady
		rec.TasksCompleted = 0
		rec.TasksTotal = g.phaseTaskTotal(name, p.CurrentPhase)
		rec.UpdatedAt = now
		if err := g.store.SaveStatus(rec); err != nil {
			return true, fmt.Errorf("resetting status for %s: %w", name, err)
		}
	}

	return true, nil
}

// phaseTaskTotal counts tasks in an agent's checklist for a phase.
// Missing artifacts count zero tasks.
func (g *Gate) phaseTaskTotal(agentName string, ordinal int) int {
	text, err := checklist.ReadFile(distributor.ChecklistPath(g.checklistDir, agentName, ordinal))
	if err != nil {
		return 0
	}
	return checklist.PhaseProgress(text).TotalTasks
}

func containsOrdinal(ordinals []int, n int) bool {
	for _, o := range ordinals {
		if o == n {
			return true
		}
	}
	return false
}
