package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/swarmd/internal/checklist"
	"github.com/fyrsmithlabs/swarmd/internal/contextstore"
	"github.com/fyrsmithlabs/swarmd/internal/distributor"
)

// Run starts the completion-detection scan and the phase-progress
// monitor and blocks until ctx is cancelled. Cancellation prevents
// further iterations; an in-flight iteration finishes first.
//
// Checklist file events trigger an immediate monitor pass between
// ticks. The watcher is best-effort: if it cannot be created the loops
// still run on their timers.
func (o *Orchestrator) Run(ctx context.Context) error {
	notify := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		o.logger.Warn("checklist watcher unavailable, polling only", zap.Error(err))
	} else {
		defer watcher.Close()
		if err := watcher.Add(o.checklistDir); err != nil {
			o.logger.Warn("cannot watch checklist dir, polling only",
				zap.String("dir", o.checklistDir),
				zap.Error(err))
		} else {
			go o.forwardEvents(ctx, watcher, notify)
		}
	}

	done := make(chan struct{}, 2)
	go func() {
		o.completionLoop(ctx)
		done <- struct{}{}
	}()
	go func() {
		o.monitorLoop(ctx, notify)
		done <- struct{}{}
	}()

	<-ctx.Done()
	<-done
	<-done
	return ctx.Err()
}

// forwardEvents collapses checklist write events into a single pending
// notification for the monitor loop.
func (o *Orchestrator) forwardEvents(ctx context.Context, watcher *fsnotify.Watcher, notify chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			select {
			case notify <- struct{}{}:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			o.logger.Warn("checklist watcher error", zap.Error(err))
		}
	}
}

func (o *Orchestrator) completionLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.CompletionScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.CompletionPass(ctx)
		}
	}
}

func (o *Orchestrator) monitorLoop(ctx context.Context, notify <-chan struct{}) {
	ticker := time.NewTicker(o.cfg.PhaseMonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.MonitorPass()
		case <-notify:
			o.MonitorPass()
		}
	}
}

// CompletionPass runs one completion-detection iteration: it pulls the
// agents' free-text work descriptions from the shared context, matches
// them against unchecked checklist lines, marks the matches, and
// refreshes the affected status records.
//
// Zero matches is a silent no-op. Multiple matched lines are all
// marked; recall wins over precision.
func (o *Orchestrator) CompletionPass(ctx context.Context) {
	active, roster := o.snapshot()
	if active == nil {
		return
	}

	descs := o.completedWork(ctx, active.ID)
	if len(descs) == 0 {
		return
	}

	ph, err := o.store.LoadPhase()
	if err != nil {
		o.logger.Warn("completion pass skipped, phase record unreadable", zap.Error(err))
		return
	}

	for _, agentID := range roster {
		path := distributor.ChecklistPath(o.checklistDir, agentID, ph.CurrentPhase)
		text, err := checklist.ReadFile(path)
		if err != nil {
			o.logger.Warn("checklist unreadable",
				zap.String("agent", agentID),
				zap.Error(err))
			continue
		}
		lines := o.matcher.Match(descs, checklist.Parse(text))
		if len(lines) == 0 {
			continue
		}
		marked, err := checklist.MarkComplete(path, lines)
		if err != nil {
			o.logger.Warn("checklist update failed",
				zap.String("agent", agentID),
				zap.Error(err))
			continue
		}
		o.logger.Info("auto-detected completions",
			zap.String("agent", agentID),
			zap.Int("phase", ph.CurrentPhase),
			zap.Int("marked", marked))
		if _, err := o.gate.Refresh(agentID); err != nil {
			o.logger.Warn("status refresh failed",
				zap.String("agent", agentID),
				zap.Error(err))
		}
	}
}

// MonitorPass runs one phase-progress iteration: it recomputes every
// agent's status record from its checklist, then applies the global
// advance predicate. Advancing is idempotent; a concurrent pass that
// loses the optimistic guard discards its write.
func (o *Orchestrator) MonitorPass() {
	_, roster := o.snapshot()
	if len(roster) == 0 {
		return
	}

	for _, agentID := range roster {
		if _, err := o.gate.Refresh(agentID); err != nil {
			o.logger.Warn("status refresh failed",
				zap.String("agent", agentID),
				zap.Error(err))
		}
	}

	advanced, err := o.gate.CheckAdvance(roster)
	if err != nil {
		o.logger.Warn("advance check failed", zap.Error(err))
		return
	}
	if advanced {
		if ph, err := o.store.LoadPhase(); err == nil {
			o.logger.Info("project advanced",
				zap.Int("currentPhaseOrdinal", ph.CurrentPhase),
				zap.Int("totalPhases", ph.TotalPhases))
		}
	}
}

// completedWork extracts work descriptions from the shared context
// payload. The store may be degraded to a local cache; that only
// affects cross-agent sharing, never correctness here.
func (o *Orchestrator) completedWork(ctx context.Context, projectID string) []string {
	payload, _, err := o.ctxClient.Get(ctx, projectID)
	if err != nil {
		if !errors.Is(err, contextstore.ErrProjectNotFound) {
			o.logger.Debug("shared context unavailable", zap.Error(err))
		}
		return nil
	}
	return stringList(payload[completedWorkKey])
}

// stringList coerces a shared-context value into a string slice. Agents
// write either one description or a JSON array of them.
func stringList(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
