// Package contextfilter derives a specialization-scoped subset of a full
// project context.
//
// Sending each agent the entire project context wastes tokens on
// material outside its focus. A static table maps each specialization to
// relevant file patterns and payload sub-keys; the filter keeps those,
// always carries the agent's task list and a bounded recent-changes
// summary, and replaces sections already present in the shared context
// with a reference marker instead of duplicating them.
package contextfilter

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// recentChangesLimit bounds the recent-changes summary.
const recentChangesLimit = 10

// genericFileLimit bounds the fallback subset for an unrecognized
// specialization.
const genericFileLimit = 10

// refPrefix marks a section served from the shared context.
const refPrefix = "ref:"

// ProjectContext is the full per-project context before filtering.
type ProjectContext struct {
	Files         []string
	Payload       map[string]any
	Tasks         []string
	RecentChanges []string
}

// FilteredContext is the reduced per-agent view.
type FilteredContext struct {
	Specialization string         `json:"specialization"`
	Focus          string         `json:"focus"`
	Files          []string       `json:"files"`
	Payload        map[string]any `json:"payload"`
	Tasks          []string       `json:"tasks"`
	RecentChanges  []string       `json:"recentChanges"`

	// References lists payload sections replaced by shared-context
	// markers rather than duplicated into this view.
	References []string `json:"references"`
}

// rule describes what one specialization cares about.
type rule struct {
	filePatterns []string
	payloadKeys  []string
	focus        string
}

// rules is the static specialization table.
var rules = map[string]rule{
	"frontend": {
		filePatterns: []string{"*.tsx", "*.jsx", "*.css", "*.scss", "*.html", "*.vue", "components/*", "pages/*"},
		payloadKeys:  []string{"ui", "routes", "components", "design"},
		focus:        "User interface components, styling, and client-side routing",
	},
	"backend": {
		filePatterns: []string{"*.go", "*.py", "*.rb", "api/*", "services/*", "handlers/*"},
		payloadKeys:  []string{"api", "services", "auth", "endpoints"},
		focus:        "API endpoints, service logic, and integrations",
	},
	"database": {
		filePatterns: []string{"*.sql", "migrations/*", "schema/*", "models/*"},
		payloadKeys:  []string{"schema", "migrations", "models"},
		focus:        "Schema design, migrations, and query performance",
	},
	"devops": {
		filePatterns: []string{"Dockerfile", "*.yaml", "*.yml", "*.tf", ".github/*", "deploy/*"},
		payloadKeys:  []string{"deploy", "infrastructure", "ci"},
		focus:        "Build pipelines, deployment, and infrastructure",
	},
	"testing": {
		filePatterns: []string{"*_test.go", "*.test.ts", "*.spec.ts", "tests/*", "e2e/*"},
		payloadKeys:  []string{"tests", "coverage", "fixtures"},
		focus:        "Test suites, coverage, and quality gates",
	},
}

// FilterBySpecialization reduces a full project context to the subset
// relevant for one specialization.
//
// shared is the current shared-context payload; payload sections already
// present there come back as "ref:<key>" markers. An unrecognized
// specialization falls back to a bounded generic subset: the first
// genericFileLimit files with no deep filtering. The function is
// deterministic: identical input yields identical output.
func FilterBySpecialization(full ProjectContext, specialization string, shared map[string]any) FilteredContext {
	out := FilteredContext{
		Specialization: specialization,
		Tasks:          append([]string(nil), full.Tasks...),
		RecentChanges:  lastN(full.RecentChanges, recentChangesLimit),
		Payload:        make(map[string]any),
	}

	r, known := rules[specialization]
	if !known {
		// Conservative default: a bounded slice of everything.
		out.Focus = "General project work (unrecognized specialization)"
		out.Files = firstN(full.Files, genericFileLimit)
		for key, value := range full.Payload {
			if _, inShared := shared[key]; inShared {
				out.References = append(out.References, refPrefix+key)
				continue
			}
			out.Payload[key] = value
		}
		sort.Strings(out.References)
		return out
	}

	out.Focus = r.focus
	for _, file := range full.Files {
		if matchesAny(file, r.filePatterns) {
			out.Files = append(out.Files, file)
		}
	}

	for _, key := range r.payloadKeys {
		value, ok := full.Payload[key]
		if !ok {
			continue
		}
		if _, inShared := shared[key]; inShared {
			out.References = append(out.References, refPrefix+key)
			continue
		}
		out.Payload[key] = value
	}
	sort.Strings(out.References)
	return out
}

// Reference returns the marker emitted for a shared section.
func Reference(key string) string {
	return fmt.Sprintf("%s%s", refPrefix, key)
}

// matchesAny reports whether the file matches any pattern. Patterns with
// a slash match against the leading path segments; bare patterns match
// the base name.
func matchesAny(file string, patterns []string) bool {
	base := path.Base(file)
	for _, pattern := range patterns {
		if strings.Contains(pattern, "/") {
			if ok, _ := path.Match(pattern, file); ok {
				return true
			}
			// Also match the pattern anywhere below the root.
			if ok, _ := path.Match("*/"+pattern, file); ok {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func firstN(values []string, n int) []string {
	if len(values) <= n {
		return append([]string(nil), values...)
	}
	return append([]string(nil), values[:n]...)
}

func lastN(values []string, n int) []string {
	if len(values) <= n {
		return append([]string(nil), values...)
	}
	return append([]string(nil), values[len(values)-n:]...)
}
