package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/swarmd/internal/agent"
	"github.com/fyrsmithlabs/swarmd/internal/checklist"
	"github.com/fyrsmithlabs/swarmd/internal/contextstore"
	"github.com/fyrsmithlabs/swarmd/internal/distributor"
	"github.com/fyrsmithlabs/swarmd/internal/phase"
	"github.com/fyrsmithlabs/swarmd/internal/project"
)

type fakeLauncher struct {
	mu       sync.Mutex
	launched []string
}

func (f *fakeLauncher) Launch(_ context.Context, agentID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launched = append(f.launched, agentID)
	return nil
}

type testEnv struct {
	orch         *Orchestrator
	store        *phase.Store
	client       *contextstore.Client
	checklistDir string
	launcher     *fakeLauncher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	checklistDir := filepath.Join(root, "checklists")
	require.NoError(t, os.MkdirAll(checklistDir, 0o700))

	store := phase.NewStore(filepath.Join(root, "state"))
	gate := phase.NewGate(store, checklistDir, zap.NewNop())
	registry := agent.NewRegistry(filepath.Join(root, "agents"), zap.NewNop(), agent.WithDebounce(0))
	projects, err := project.NewManager(filepath.Join(root, "projects"))
	require.NoError(t, err)
	client := contextstore.NewClient("", time.Second, zap.NewNop())
	launcher := &fakeLauncher{}

	orch := New(Config{
		CompletionScanInterval: 10 * time.Millisecond,
		PhaseMonitorInterval:   10 * time.Millisecond,
		MaxAutoCompletions:     3,
	}, Deps{
		Registry:     registry,
		Gate:         gate,
		Store:        store,
		Context:      client,
		Projects:     projects,
		Launcher:     launcher,
		ChecklistDir: checklistDir,
		Logger:       zap.NewNop(),
	})

	return &testEnv{
		orch:         orch,
		store:        store,
		client:       client,
		checklistDir: checklistDir,
		launcher:     launcher,
	}
}

// backendTasks classify to the backend generalist only, keeping the
// roster to a single agent.
var backendTasks = []string{
	"Build login API",
	"Create auth endpoint",
	"Add session service",
	"Wire payment API",
}

func TestInitProject(t *testing.T) {
	env := newTestEnv(t)

	rec, err := env.orch.InitProject(context.Background(), "shop", "/tmp/shop", "storefront", backendTasks, 2)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"backend-generalist"}, rec.Agents)

	// Phase record seeded at ordinal 1.
	ph, err := env.store.LoadPhase()
	require.NoError(t, err)
	assert.Equal(t, 1, ph.CurrentPhase)
	assert.Equal(t, 2, ph.TotalPhases)

	// Checklists written for both phases, ceiling split 2/2.
	for phaseN := 1; phaseN <= 2; phaseN++ {
		text, err := checklist.ReadFile(distributor.ChecklistPath(env.checklistDir, "backend-generalist", phaseN))
		require.NoError(t, err)
		assert.Len(t, checklist.Parse(text), 2)
	}

	// Launcher invoked once per roster agent.
	assert.Equal(t, []string{"backend-generalist"}, env.launcher.launched)
}

func TestInitProject_MixedSpecializations(t *testing.T) {
	env := newTestEnv(t)

	tasks := []string{
		"Build login API",
		"Style dashboard page",
		"Create user schema",
	}
	rec, err := env.orch.InitProject(context.Background(), "shop", "/tmp/shop", "", tasks, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"backend-generalist", "frontend-generalist", "database-generalist"}, rec.Agents)
}

func TestCompletionPass(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.orch.InitProject(ctx, "shop", "/tmp/shop", "", backendTasks, 2)
	require.NoError(t, err)

	// No completedWork in shared context yet: silent no-op.
	env.orch.CompletionPass(ctx)
	text, err := checklist.ReadFile(distributor.ChecklistPath(env.checklistDir, "backend-generalist", 1))
	require.NoError(t, err)
	assert.NotContains(t, text, "[x]")

	_, err = env.client.Update(ctx, rec.ID, "backend-generalist", map[string]any{
		"completedWork": []any{"Build login API"},
	})
	require.NoError(t, err)

	env.orch.CompletionPass(ctx)

	text, err = checklist.ReadFile(distributor.ChecklistPath(env.checklistDir, "backend-generalist", 1))
	require.NoError(t, err)
	assert.Contains(t, text, "[x] Build login API")
	assert.Contains(t, text, "[ ] Create auth endpoint")

	// Status record refreshed from the mutated checklist.
	status, err := env.store.LoadStatus("backend-generalist")
	require.NoError(t, err)
	assert.Equal(t, checklist.StatusInProgress, status.Status)
	assert.Equal(t, 1, status.TasksCompleted)
}

func TestMonitorPass_Advances(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.orch.InitProject(ctx, "shop", "/tmp/shop", "", backendTasks, 2)
	require.NoError(t, err)

	// Phase 1 incomplete: no advance.
	env.orch.MonitorPass()
	ph, err := env.store.LoadPhase()
	require.NoError(t, err)
	assert.Equal(t, 1, ph.CurrentPhase)

	// Complete every phase-1 line, then re-run the monitor.
	path := distributor.ChecklistPath(env.checklistDir, "backend-generalist", 1)
	text, err := checklist.ReadFile(path)
	require.NoError(t, err)
	items := checklist.Parse(text)
	lines := make([]int, len(items))
	for i, item := range items {
		lines[i] = item.Line
	}
	_, err = checklist.MarkComplete(path, lines)
	require.NoError(t, err)

	env.orch.MonitorPass()
	ph, err = env.store.LoadPhase()
	require.NoError(t, err)
	assert.Equal(t, 2, ph.CurrentPhase)
	assert.Equal(t, []int{1}, ph.CompletedPhases)

	// Repeating the pass with the stale condition does not double-advance.
	env.orch.MonitorPass()
	ph, err = env.store.LoadPhase()
	require.NoError(t, err)
	assert.Equal(t, 2, ph.CurrentPhase)
}

func TestProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.orch.InitProject(ctx, "shop", "/tmp/shop", "", backendTasks, 2)
	require.NoError(t, err)

	path := distributor.ChecklistPath(env.checklistDir, "backend-generalist", 1)
	_, err = checklist.MarkComplete(path, []int{1})
	require.NoError(t, err)

	prog, err := env.orch.Progress()
	require.NoError(t, err)
	assert.Equal(t, "shop", prog.Project)
	assert.Equal(t, 1, prog.CurrentPhase)
	assert.Equal(t, 2, prog.TotalPhases)
	require.Len(t, prog.Agents, 1)
	assert.Equal(t, 1, prog.Agents[0].CompletedTasks)
	assert.Equal(t, 2, prog.Agents[0].TotalTasks)
	assert.InDelta(t, 50.0, prog.Percentage, 0.01)
}

func TestProgress_NoProject(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.orch.Progress()
	assert.ErrorIs(t, err, ErrNoProject)
}

func TestResume(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.orch.InitProject(ctx, "shop", "/tmp/shop", "", backendTasks, 2)
	require.NoError(t, err)

	// A fresh orchestrator over the same state picks the project up.
	fresh := New(env.orch.cfg, Deps{
		Registry:     env.orch.registry,
		Gate:         env.orch.gate,
		Store:        env.orch.store,
		Context:      env.orch.ctxClient,
		Projects:     env.orch.projects,
		ChecklistDir: env.checklistDir,
	})
	require.NoError(t, fresh.Resume("shop"))

	prog, err := fresh.Progress()
	require.NoError(t, err)
	assert.Equal(t, "shop", prog.Project)

	assert.ErrorIs(t, fresh.Resume("absent"), project.ErrNotFound)
}

func TestRun_Cancellable(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := env.orch.InitProject(ctx, "shop", "/tmp/shop", "", backendTasks, 2)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- env.orch.Run(ctx) }()

	// Let a few iterations fire, then stop.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRun_WatcherTriggersAdvance(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := env.orch.InitProject(ctx, "shop", "/tmp/shop", "", backendTasks, 2)
	require.NoError(t, err)

	go func() { _ = env.orch.Run(ctx) }()

	// Completing the phase-1 checklist should advance the project via
	// either the watcher or the next tick.
	path := distributor.ChecklistPath(env.checklistDir, "backend-generalist", 1)
	text, err := checklist.ReadFile(path)
	require.NoError(t, err)
	items := checklist.Parse(text)
	lines := make([]int, len(items))
	for i, item := range items {
		lines[i] = item.Line
	}
	_, err = checklist.MarkComplete(path, lines)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ph, err := env.store.LoadPhase()
		return err == nil && ph.CurrentPhase == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAgentView(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.orch.InitProject(ctx, "shop", "/tmp/shop", "", backendTasks, 2)
	require.NoError(t, err)

	_, err = env.client.Update(ctx, rec.ID, "backend-generalist", map[string]any{
		"api":   map[string]any{"version": "v1"},
		"ui":    "irrelevant to backend",
		"files": []any{"api/server.go", "pages/home.tsx"},
	})
	require.NoError(t, err)

	view, err := env.orch.AgentView(ctx, "backend-generalist")
	require.NoError(t, err)
	assert.Equal(t, "backend", view.Specialization)
	assert.Equal(t, []string{"api/server.go"}, view.Files)
	assert.Len(t, view.Tasks, 2, "unchecked phase-1 tasks")

	// Relevant payload sections live in the shared store, so the view
	// carries markers instead of duplicating them.
	assert.Contains(t, view.References, "ref:api")
	assert.NotContains(t, view.Payload, "api")
	assert.NotContains(t, view.Payload, "ui")
	assert.NotContains(t, view.References, "ref:ui")
}

func TestAgentView_UnknownAgent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.orch.InitProject(ctx, "shop", "/tmp/shop", "", backendTasks, 2)
	require.NoError(t, err)

	view, err := env.orch.AgentView(ctx, "mystery")
	require.NoError(t, err)
	assert.Contains(t, view.Focus, "unrecognized")
}

func TestStringList(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"nil", nil, nil},
		{"string", "did a thing", []string{"did a thing"}},
		{"empty string", "", nil},
		{"string slice", []string{"a", "b"}, []string{"a", "b"}},
		{"any slice", []any{"a", 7, "", "b"}, []string{"a", "b"}},
		{"unsupported", 42, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stringList(tt.in))
		})
	}
}

func TestInitProject_NoTasks(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.orch.InitProject(context.Background(), "shop", "/tmp/shop", "", nil, 2)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no assignments"))
}
