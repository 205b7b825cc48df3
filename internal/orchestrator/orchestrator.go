// Package orchestrator wires the registry, distributor, phase gate,
// completion matcher, and shared context client into a single driver.
//
// All cross-agent awareness flows through persisted filesystem state:
// checklists and status records are re-read on a poll/notify cycle, and
// no component signals another agent process directly. The orchestrator
// runs two independently configured loops, a completion-detection scan
// and a phase-progress monitor, both cancellable via context.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/swarmd/internal/agent"
	"github.com/fyrsmithlabs/swarmd/internal/checklist"
	"github.com/fyrsmithlabs/swarmd/internal/contextfilter"
	"github.com/fyrsmithlabs/swarmd/internal/contextstore"
	"github.com/fyrsmithlabs/swarmd/internal/distributor"
	"github.com/fyrsmithlabs/swarmd/internal/matcher"
	"github.com/fyrsmithlabs/swarmd/internal/phase"
	"github.com/fyrsmithlabs/swarmd/internal/project"
)

// completedWorkKey is the shared-context payload key agents write their
// free-text "work done" descriptions under.
const completedWorkKey = "completedWork"

var (
	// ErrNoAgents indicates that discovery found no agent definitions
	// and the fallback roster was unavailable. This is the one fatal,
	// user-visible condition.
	ErrNoAgents = errors.New("no agents discovered and fallback roster empty")

	// ErrNoProject indicates no project has been initialized yet.
	ErrNoProject = errors.New("no active project")
)

// Launcher starts the actual worker for an agent. The mechanism is
// supplied by the caller and never implemented here; only success or
// failure crosses the boundary.
type Launcher interface {
	Launch(ctx context.Context, agentID, workingDir string) error
}

// Config holds orchestrator loop configuration.
type Config struct {
	CompletionScanInterval time.Duration
	PhaseMonitorInterval   time.Duration
	MaxAutoCompletions     int
}

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Registry     *agent.Registry
	Gate         *phase.Gate
	Store        *phase.Store
	Context      *contextstore.Client
	Projects     *project.Manager
	Launcher     Launcher // optional
	ChecklistDir string
	Logger       *zap.Logger // optional, defaults to zap.NewNop()
}

// Orchestrator drives one project through its phases.
type Orchestrator struct {
	cfg          Config
	registry     *agent.Registry
	gate         *phase.Gate
	store        *phase.Store
	ctxClient    *contextstore.Client
	projects     *project.Manager
	launcher     Launcher
	matcher      *matcher.Matcher
	checklistDir string
	logger       *zap.Logger

	mu     sync.RWMutex
	active *project.Record
	roster []string
}

// New creates an orchestrator. The zero Config gets 30s loop intervals
// and the default per-pass completion cap.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.CompletionScanInterval <= 0 {
		cfg.CompletionScanInterval = 30 * time.Second
	}
	if cfg.PhaseMonitorInterval <= 0 {
		cfg.PhaseMonitorInterval = 30 * time.Second
	}
	if cfg.MaxAutoCompletions == 0 {
		cfg.MaxAutoCompletions = matcher.DefaultMaxPerPass
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:          cfg,
		registry:     deps.Registry,
		gate:         deps.Gate,
		store:        deps.Store,
		ctxClient:    deps.Context,
		projects:     deps.Projects,
		launcher:     deps.Launcher,
		matcher:      matcher.New(cfg.MaxAutoCompletions),
		checklistDir: deps.ChecklistDir,
		logger:       logger,
	}
}

// InitProject distributes the task list across phases and agents,
// persists the checklists and status records, registers the project,
// and launches a worker per active agent when a Launcher is supplied.
//
// Agents matching zero tasks are excluded from the active roster.
func (o *Orchestrator) InitProject(ctx context.Context, name, rootPath, description string, tasks []string, phaseCount int) (*project.Record, error) {
	agents := o.registry.Scan(ctx)
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}

	plan := distributor.Distribute(tasks, phaseCount, agents)
	roster := plan.Agents()
	if len(roster) == 0 {
		return nil, fmt.Errorf("task distribution produced no assignments for %d tasks", len(tasks))
	}

	if err := plan.Write(o.checklistDir); err != nil {
		return nil, fmt.Errorf("writing checklists: %w", err)
	}
	if err := o.gate.Init(phaseCount, roster); err != nil {
		return nil, fmt.Errorf("initializing phase gate: %w", err)
	}

	rec, err := project.NewRecord(name, rootPath, description, phaseCount, roster)
	if err != nil {
		return nil, err
	}
	if err := o.projects.Save(rec); err != nil {
		return nil, fmt.Errorf("saving project record: %w", err)
	}

	o.mu.Lock()
	o.active = rec
	o.roster = roster
	o.mu.Unlock()

	if o.launcher != nil {
		for _, agentID := range roster {
			if err := o.launcher.Launch(ctx, agentID, rootPath); err != nil {
				o.logger.Warn("agent launch failed",
					zap.String("agent", agentID),
					zap.Error(err))
			}
		}
	}

	o.logger.Info("project initialized",
		zap.String("project", rec.Name),
		zap.Int("phases", phaseCount),
		zap.Int("tasks", len(tasks)),
		zap.Strings("agents", roster))

	return rec, nil
}

// Resume loads an existing project record and its roster so the loops
// can pick up where a previous process left off.
func (o *Orchestrator) Resume(name string) error {
	rec, err := o.projects.Get(name)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.active = rec
	o.roster = append([]string(nil), rec.Agents...)
	o.mu.Unlock()
	return nil
}

// snapshot returns the active project and roster under the read lock.
func (o *Orchestrator) snapshot() (*project.Record, []string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active, o.roster
}

// AgentProgress is the per-agent slice of a progress query.
type AgentProgress struct {
	Agent          string           `json:"agent"`
	Phase          int              `json:"phase"`
	CompletedTasks int              `json:"completedTasks"`
	TotalTasks     int              `json:"totalTasks"`
	Percentage     float64          `json:"percentage"`
	Status         checklist.Status `json:"status"`
}

// ProjectProgress aggregates completion across the active roster for
// the current phase.
type ProjectProgress struct {
	Project      string          `json:"project"`
	CurrentPhase int             `json:"currentPhaseOrdinal"`
	TotalPhases  int             `json:"totalPhases"`
	Percentage   float64         `json:"percentage"`
	Agents       []AgentProgress `json:"agents"`
}

// Progress is the read-only query exposed to monitoring and CLI layers.
// It derives everything from persisted checklists, so it never mutates
// state and is safe to call concurrently with the loops.
func (o *Orchestrator) Progress() (*ProjectProgress, error) {
	active, roster := o.snapshot()
	if active == nil {
		return nil, ErrNoProject
	}

	ph, err := o.store.LoadPhase()
	if err != nil {
		return nil, fmt.Errorf("loading project phase: %w", err)
	}

	out := &ProjectProgress{
		Project:      active.Name,
		CurrentPhase: ph.CurrentPhase,
		TotalPhases:  ph.TotalPhases,
	}

	var total, completed int
	for _, agentID := range sortedRoster(roster) {
		path := distributor.ChecklistPath(o.checklistDir, agentID, ph.CurrentPhase)
		text, err := checklist.ReadFile(path)
		if err != nil {
			o.logger.Warn("checklist unreadable",
				zap.String("agent", agentID),
				zap.Error(err))
			text = ""
		}
		prog := checklist.PhaseProgress(text)
		out.Agents = append(out.Agents, AgentProgress{
			Agent:          agentID,
			Phase:          ph.CurrentPhase,
			CompletedTasks: prog.CompletedTasks,
			TotalTasks:     prog.TotalTasks,
			Percentage:     prog.Percentage,
			Status:         prog.Status,
		})
		total += prog.TotalTasks
		completed += prog.CompletedTasks
	}
	if total > 0 {
		out.Percentage = 100 * float64(completed) / float64(total)
	}
	return out, nil
}

// AgentView returns the specialization-filtered slice of the shared
// context for one agent, together with its current-phase task list.
// Unknown agents get the filter's bounded generic fallback.
func (o *Orchestrator) AgentView(ctx context.Context, agentID string) (*contextfilter.FilteredContext, error) {
	active, _ := o.snapshot()
	if active == nil {
		return nil, ErrNoProject
	}

	specialization := ""
	for _, a := range o.registry.Scan(ctx) {
		if a.Name == agentID {
			specialization = a.Specialization
			break
		}
	}

	ph, err := o.store.LoadPhase()
	if err != nil {
		return nil, fmt.Errorf("loading project phase: %w", err)
	}
	text, err := checklist.ReadFile(distributor.ChecklistPath(o.checklistDir, agentID, ph.CurrentPhase))
	if err != nil {
		text = ""
	}
	var tasks []string
	for _, item := range checklist.Parse(text) {
		if !item.Completed {
			tasks = append(tasks, item.Description)
		}
	}

	payload, _, err := o.ctxClient.Get(ctx, active.ID)
	if err != nil {
		if !errors.Is(err, contextstore.ErrProjectNotFound) {
			return nil, fmt.Errorf("fetching shared context: %w", err)
		}
		payload = map[string]any{}
	}

	full := contextfilter.ProjectContext{
		Files:         stringList(payload["files"]),
		Payload:       payload,
		Tasks:         tasks,
		RecentChanges: stringList(payload["recentChanges"]),
	}
	// The payload is served from the shared store the agent can query
	// directly, so relevant sections come back as ref markers rather
	// than duplicated bytes. Tasks, files, and recent changes stay
	// inline.
	view := contextfilter.FilterBySpecialization(full, specialization, payload)
	return &view, nil
}

func sortedRoster(roster []string) []string {
	out := append([]string(nil), roster...)
	sort.Strings(out)
	return out
}
