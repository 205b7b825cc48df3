package checklist

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFile_Missing(t *testing.T) {
	text, err := ReadFile(filepath.Join(t.TempDir(), "absent.md"))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestWriteFile_ReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent-phase1.md")

	require.NoError(t, WriteFile(path, "- [ ] task one\n"))

	text, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "- [ ] task one\n", text)
}

func TestWriteFile_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proj", "checklists", "a.md")
	require.NoError(t, WriteFile(path, "- [ ] x\n"))

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestMarkComplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.md")
	require.NoError(t, WriteFile(path, "- [ ] one\n- [ ] two\n- [x] three\nprose\n"))

	// Line 3 is already checked, line 4 is prose, line 9 does not exist.
	flipped, err := MarkComplete(path, []int{1, 3, 4, 9})
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)

	text, err := ReadFile(path)
	require.NoError(t, err)

	items := Parse(text)
	require.Len(t, items, 3)
	assert.True(t, items[0].Completed)
	assert.False(t, items[1].Completed)
	assert.True(t, items[2].Completed)
}

func TestMarkComplete_MissingFile(t *testing.T) {
	flipped, err := MarkComplete(filepath.Join(t.TempDir(), "nope.md"), []int{1})
	require.NoError(t, err)
	assert.Zero(t, flipped)
}

func TestMarkComplete_PreservesIndentAndBullet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.md")
	require.NoError(t, WriteFile(path, "  * [ ] indented star task\n"))

	flipped, err := MarkComplete(path, []int{1})
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)

	text, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "  * [x] indented star task\n", text)
}

func TestMarkComplete_ConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.md")
	require.NoError(t, WriteFile(path, "- [ ] a\n- [ ] b\n- [ ] c\n- [ ] d\n"))

	var wg sync.WaitGroup
	for line := 1; line <= 4; line++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := MarkComplete(path, []int{n})
			assert.NoError(t, err)
		}(line)
	}
	wg.Wait()

	text, err := ReadFile(path)
	require.NoError(t, err)

	p := PhaseProgress(text)
	assert.Equal(t, 4, p.CompletedTasks)
	assert.Equal(t, StatusCompleted, p.Status)
}
