package checklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	text := `# Phase 1 tasks

- [ ] Implement login endpoint
- [x] Create user schema
* [ ] Wire payment webhook
* [X] Add migration script
some prose that is not a task
- [?] malformed marker
- [ ]
`

	items := Parse(text)
	require.Len(t, items, 4)

	assert.Equal(t, Item{Line: 3, Description: "Implement login endpoint", Completed: false}, items[0])
	assert.Equal(t, Item{Line: 4, Description: "Create user schema", Completed: true}, items[1])
	assert.Equal(t, Item{Line: 5, Description: "Wire payment webhook", Completed: false}, items[2])
	assert.Equal(t, Item{Line: 6, Description: "Add migration script", Completed: true}, items[3])
}

func TestParse_IndentedBullets(t *testing.T) {
	items := Parse("  - [ ] indented task")
	require.Len(t, items, 1)
	assert.Equal(t, "indented task", items[0].Description)
}

func TestPhaseProgress(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		total      int
		completed  int
		percentage float64
		status     Status
	}{
		{
			name:   "empty checklist",
			text:   "",
			status: StatusPending,
		},
		{
			name:       "nothing done",
			text:       "- [ ] a\n- [ ] b\n",
			total:      2,
			percentage: 0,
			status:     StatusPending,
		},
		{
			// Scenario: 5 lines, 2 done -> 40% in_progress.
			name:       "partially done",
			text:       "- [x] a\n- [x] b\n- [ ] c\n- [ ] d\n- [ ] e\n",
			total:      5,
			completed:  2,
			percentage: 40,
			status:     StatusInProgress,
		},
		{
			name:       "all done",
			text:       "- [x] a\n- [x] b\n",
			total:      2,
			completed:  2,
			percentage: 100,
			status:     StatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PhaseProgress(tt.text)
			assert.Equal(t, tt.total, p.TotalTasks)
			assert.Equal(t, tt.completed, p.CompletedTasks)
			assert.InDelta(t, tt.percentage, p.Percentage, 0.001)
			assert.Equal(t, tt.status, p.Status)
		})
	}
}

func TestRender_RoundTrip(t *testing.T) {
	items := []Item{
		{Description: "first task", Completed: false},
		{Description: "second task", Completed: true},
	}

	parsed := Parse(Render(items))
	require.Len(t, parsed, 2)
	assert.Equal(t, "first task", parsed[0].Description)
	assert.False(t, parsed[0].Completed)
	assert.Equal(t, "second task", parsed[1].Description)
	assert.True(t, parsed[1].Completed)
}
