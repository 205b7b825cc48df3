// Package agent defines worker agents and the registry that discovers them.
//
// An agent is an independently-executing worker responsible for one
// specialization's slice of a project's task list. Definitions live as
// YAML files in a directory; the registry scans that directory and parses
// each definition into a strict record so downstream logic never branches
// on field presence.
package agent

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Errors for agent definition loading.
var (
	ErrMissingName           = errors.New("agent definition missing name")
	ErrMissingSpecialization = errors.New("agent definition missing specialization")
)

// Agent is a worker unit with a specialization-scoped task subset.
type Agent struct {
	// Name uniquely identifies the agent within a project.
	Name string `yaml:"name" json:"name"`

	// Specialization tags the agent's domain focus (e.g. "frontend").
	Specialization string `yaml:"specialization" json:"specialization"`

	// Capabilities lists what the agent can do, informational only.
	Capabilities []string `yaml:"capabilities" json:"capabilities"`

	// Priority orders agents when several match the same work.
	// Lower values win. Defaults to 100 when omitted.
	Priority int `yaml:"priority" json:"priority"`
}

// definition is the loose on-disk YAML shape. Pointers distinguish
// "absent" from zero values so defaults apply only to absent fields.
type definition struct {
	Name           string   `yaml:"name"`
	Specialization string   `yaml:"specialization"`
	Capabilities   []string `yaml:"capabilities"`
	Priority       *int     `yaml:"priority"`
}

const defaultPriority = 100

// Load parses a single agent definition file.
//
// A definition missing its name or specialization is rejected; the caller
// decides whether that is fatal (it never is during a scan).
func Load(path string) (Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Agent{}, fmt.Errorf("reading agent definition %s: %w", path, err)
	}

	var def definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Agent{}, fmt.Errorf("parsing agent definition %s: %w", path, err)
	}

	if def.Name == "" {
		return Agent{}, fmt.Errorf("%s: %w", path, ErrMissingName)
	}
	if def.Specialization == "" {
		return Agent{}, fmt.Errorf("%s: %w", path, ErrMissingSpecialization)
	}

	a := Agent{
		Name:           def.Name,
		Specialization: def.Specialization,
		Capabilities:   def.Capabilities,
		Priority:       defaultPriority,
	}
	if def.Priority != nil {
		a.Priority = *def.Priority
	}
	return a, nil
}

// FallbackRoster returns the built-in generalist agents used when a scan
// discovers no definitions. The system is never left with zero workers.
func FallbackRoster() []Agent {
	return []Agent{
		{Name: "frontend-generalist", Specialization: "frontend", Capabilities: []string{"ui", "components", "styling"}, Priority: defaultPriority},
		{Name: "backend-generalist", Specialization: "backend", Capabilities: []string{"api", "services", "integration"}, Priority: defaultPriority},
		{Name: "database-generalist", Specialization: "database", Capabilities: []string{"schema", "migrations", "queries"}, Priority: defaultPriority},
		{Name: "devops-generalist", Specialization: "devops", Capabilities: []string{"ci", "deploy", "infrastructure"}, Priority: defaultPriority},
		{Name: "testing-generalist", Specialization: "testing", Capabilities: []string{"unit", "integration", "e2e"}, Priority: defaultPriority},
	}
}

// sortAgents orders agents by priority then name for deterministic output.
func sortAgents(agents []Agent) {
	sort.Slice(agents, func(i, j int) bool {
		if agents[i].Priority != agents[j].Priority {
			return agents[i].Priority < agents[j].Priority
		}
		return agents[i].Name < agents[j].Name
	})
}
