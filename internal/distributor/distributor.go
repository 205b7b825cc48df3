// Package distributor allocates a generated task list across phases and
// agents.
//
// Each task is classified by a keyword-to-specialization affinity table;
// unmatched tasks go to a generalist agent. Within an agent's task set,
// tasks split across phases by ceiling division so earlier phases never
// receive fewer tasks than later ones by more than one.
package distributor

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/swarmd/internal/agent"
	"github.com/fyrsmithlabs/swarmd/internal/checklist"
)

// Task is a single unit of work owned by an agent within a phase.
type Task struct {
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	Agent       string `json:"agent"`
	Phase       int    `json:"phase"`

	// Line is the task's line reference in its persisted checklist,
	// populated when the plan is written to disk.
	Line int `json:"line,omitempty"`
}

// Plan maps agent name -> phase ordinal (1-based) -> tasks.
//
// Only agents that matched at least one task appear, and every agent
// present owns at least one non-empty phase.
type Plan map[string]map[int][]Task

// affinity maps task keywords to specializations. Keywords match whole
// words of the case-folded task description, never substrings, so "ui"
// does not fire inside "build".
var affinity = []struct {
	keyword        string
	specialization string
}{
	{"ui", "frontend"},
	{"component", "frontend"},
	{"page", "frontend"},
	{"style", "frontend"},
	{"css", "frontend"},
	{"form", "frontend"},
	{"view", "frontend"},
	{"frontend", "frontend"},
	{"api", "backend"},
	{"endpoint", "backend"},
	{"service", "backend"},
	{"auth", "backend"},
	{"login", "backend"},
	{"handler", "backend"},
	{"backend", "backend"},
	{"schema", "database"},
	{"migration", "database"},
	{"query", "database"},
	{"table", "database"},
	{"index", "database"},
	{"database", "database"},
	{"deploy", "devops"},
	{"docker", "devops"},
	{"pipeline", "devops"},
	{"ci", "devops"},
	{"infrastructure", "devops"},
	{"monitoring", "devops"},
	{"test", "testing"},
	{"coverage", "testing"},
	{"e2e", "testing"},
}

// Distribute allocates tasks across phaseCount phases and the given
// agents.
//
// Tasks whose description matches no keyword, or whose matched
// specialization has no agent, fall to the generalist agent. The result
// round-trips: concatenating all per-agent per-phase lists reproduces
// every input task exactly once.
func Distribute(tasks []string, phaseCount int, agents []agent.Agent) Plan {
	plan := make(Plan)
	if len(tasks) == 0 || len(agents) == 0 || phaseCount < 1 {
		return plan
	}

	bySpec := make(map[string]agent.Agent)
	for _, a := range agents {
		// First agent per specialization wins; callers pass rosters
		// sorted by priority.
		if _, ok := bySpec[a.Specialization]; !ok {
			bySpec[a.Specialization] = a
		}
	}
	generalist := pickGeneralist(agents, bySpec)

	// Classify, preserving input order per agent.
	perAgent := make(map[string][]string)
	for _, desc := range tasks {
		owner := generalist
		if spec := classify(desc); spec != "" {
			if a, ok := bySpec[spec]; ok {
				owner = a
			}
		}
		perAgent[owner.Name] = append(perAgent[owner.Name], desc)
	}

	for name, descs := range perAgent {
		plan[name] = splitPhases(name, descs, phaseCount)
	}
	return plan
}

// classify returns the specialization for a task description, or "" when
// no keyword matches.
func classify(desc string) string {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(desc)) {
		words[strings.Trim(w, ".,;:!?()[]{}'\"`")] = true
	}
	for _, entry := range affinity {
		if words[entry.keyword] {
			return entry.specialization
		}
	}
	return ""
}

// pickGeneralist chooses the agent that receives unmatched tasks.
// Prefers a backend agent; otherwise the highest-priority agent overall.
func pickGeneralist(agents []agent.Agent, bySpec map[string]agent.Agent) agent.Agent {
	if a, ok := bySpec["backend"]; ok {
		return a
	}
	best := agents[0]
	for _, a := range agents[1:] {
		if a.Priority < best.Priority || (a.Priority == best.Priority && a.Name < best.Name) {
			best = a
		}
	}
	return best
}

// splitPhases divides an agent's tasks across phases by ceiling division.
// With 17 tasks over 3 phases the counts are [6, 6, 5]. Trailing phases
// left with zero tasks are omitted.
func splitPhases(agentName string, descs []string, phaseCount int) map[int][]Task {
	phases := make(map[int][]Task)

	n := len(descs)
	base := n / phaseCount
	extra := n % phaseCount // first `extra` phases get one more task

	idx := 0
	for phase := 1; phase <= phaseCount; phase++ {
		count := base
		if phase <= extra {
			count++
		}
		if count == 0 {
			continue
		}
		tasks := make([]Task, 0, count)
		for i := 0; i < count; i++ {
			tasks = append(tasks, Task{
				Description: descs[idx],
				Agent:       agentName,
				Phase:       phase,
			})
			idx++
		}
		phases[phase] = tasks
	}
	return phases
}

// Agents returns the plan's agent names in sorted order.
func (p Plan) Agents() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TasksFor returns the agent's tasks for a phase, nil when none.
func (p Plan) TasksFor(agentName string, phase int) []Task {
	return p[agentName][phase]
}

// ChecklistPath returns the checklist artifact path for an (agent, phase)
// pair under dir. One artifact exists per pair.
func ChecklistPath(dir, agentName string, phase int) string {
	return filepath.Join(dir, fmt.Sprintf("%s-phase-%d.md", agentName, phase))
}

// Write persists the plan as checklist artifacts under dir, one file per
// (agent, phase). Task line references are populated on return.
func (p Plan) Write(dir string) error {
	for _, name := range p.Agents() {
		for phase, tasks := range p[name] {
			items := make([]checklist.Item, len(tasks))
			for i, task := range tasks {
				items[i] = checklist.Item{Description: task.Description, Completed: task.Completed}
			}
			path := ChecklistPath(dir, name, phase)
			if err := checklist.WriteFile(path, checklist.Render(items)); err != nil {
				return fmt.Errorf("writing plan checklist for %s phase %d: %w", name, phase, err)
			}
			for i := range tasks {
				tasks[i].Line = i + 1
			}
		}
	}
	return nil
}
