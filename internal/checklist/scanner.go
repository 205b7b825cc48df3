// Package checklist parses and mutates persisted task checklists.
//
// A checklist is a plain-text artifact with one task per bullet line:
//
//	- [ ] Implement login endpoint
//	- [x] Create user schema
//	* [ ] Wire payment webhook
//
// Both "-" and "*" bullets are recognized, followed by a bracketed
// two-state completion marker. Any other line is ignored as prose, which
// lets agents keep headings and notes inside the same artifact.
package checklist

import (
	"fmt"
	"strings"
)

// Status is the derived completion status of a checklist.
type Status string

const (
	// StatusPending means no task has been completed yet.
	StatusPending Status = "pending"

	// StatusInProgress means at least one but not all tasks are complete.
	StatusInProgress Status = "in_progress"

	// StatusCompleted means every task is complete.
	StatusCompleted Status = "completed"
)

// Item is a single parsed checklist entry.
type Item struct {
	// Line is the 1-based line number in the source text.
	Line int

	// Description is the task text after the completion marker.
	Description string

	// Completed reports whether the marker was checked.
	Completed bool
}

// Progress summarizes completion of a checklist.
type Progress struct {
	TotalTasks     int
	CompletedTasks int
	Percentage     float64
	Status         Status
}

// bullet prefixes recognized as task lines.
var bulletMarkers = []string{"- [", "* ["}

// Parse extracts checklist items from text in order of appearance.
//
// Line numbers refer to the original text so callers can mutate specific
// lines later. Lines that are not task bullets are skipped silently.
func Parse(text string) []Item {
	var items []Item
	for i, line := range strings.Split(text, "\n") {
		item, ok := parseLine(line)
		if !ok {
			continue
		}
		item.Line = i + 1
		items = append(items, item)
	}
	return items
}

// PhaseProgress computes completion statistics for a checklist.
//
// It is a pure function of the text: no I/O, no side effects. An empty
// checklist reports zero percent and pending status.
func PhaseProgress(text string) Progress {
	items := Parse(text)

	p := Progress{TotalTasks: len(items), Status: StatusPending}
	for _, item := range items {
		if item.Completed {
			p.CompletedTasks++
		}
	}

	if p.TotalTasks > 0 {
		p.Percentage = 100 * float64(p.CompletedTasks) / float64(p.TotalTasks)
	}

	switch {
	case p.TotalTasks == 0 || p.CompletedTasks == 0:
		p.Status = StatusPending
	case p.CompletedTasks == p.TotalTasks:
		p.Status = StatusCompleted
	default:
		p.Status = StatusInProgress
	}

	return p
}

// Render writes items back to checklist text, one bullet per line.
//
// Rendered output uses the "-" bullet form regardless of the source
// bullet; Parse(Render(items)) yields the same descriptions and states.
func Render(items []Item) string {
	var b strings.Builder
	for _, item := range items {
		marker := " "
		if item.Completed {
			marker = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s\n", marker, item.Description)
	}
	return b.String()
}

// parseLine attempts to parse a single line as a checklist bullet.
func parseLine(line string) (Item, bool) {
	trimmed := strings.TrimSpace(line)

	matched := false
	for _, m := range bulletMarkers {
		if strings.HasPrefix(trimmed, m) {
			matched = true
			break
		}
	}
	if !matched {
		return Item{}, false
	}

	// After "- [" the marker occupies one rune followed by "] ".
	rest := trimmed[len("- ["):]
	if len(rest) < 2 || rest[1] != ']' {
		return Item{}, false
	}

	var completed bool
	switch rest[0] {
	case ' ':
		completed = false
	case 'x', 'X':
		completed = true
	default:
		return Item{}, false
	}

	desc := strings.TrimSpace(rest[2:])
	if desc == "" {
		return Item{}, false
	}

	return Item{Description: desc, Completed: completed}, true
}
