package contextfilter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullContext() ProjectContext {
	return ProjectContext{
		Files: []string{
			"components/Button.tsx",
			"pages/Login.tsx",
			"api/sessions.go",
			"migrations/001_users.sql",
			"styles/app.css",
			"Dockerfile",
			"handlers/auth_test.go",
		},
		Payload: map[string]any{
			"ui":     map[string]any{"theme": "dark"},
			"api":    map[string]any{"base": "/v1"},
			"schema": "users(id, email)",
			"deploy": "k8s",
		},
		Tasks:         []string{"Build login form", "Style header"},
		RecentChanges: []string{"added sessions api", "new users table"},
	}
}

func TestFilterBySpecialization_Frontend(t *testing.T) {
	out := FilterBySpecialization(fullContext(), "frontend", nil)

	assert.Equal(t, "frontend", out.Specialization)
	assert.NotEmpty(t, out.Focus)
	assert.ElementsMatch(t, []string{"components/Button.tsx", "pages/Login.tsx", "styles/app.css"}, out.Files)
	assert.Contains(t, out.Payload, "ui")
	assert.NotContains(t, out.Payload, "schema")
	assert.Equal(t, []string{"Build login form", "Style header"}, out.Tasks)
}

func TestFilterBySpecialization_SharedSectionsBecomeReferences(t *testing.T) {
	shared := map[string]any{"ui": "already shared"}
	out := FilterBySpecialization(fullContext(), "frontend", shared)

	assert.NotContains(t, out.Payload, "ui", "shared sections are not duplicated")
	assert.Contains(t, out.References, "ref:ui")
}

func TestFilterBySpecialization_RecentChangesBounded(t *testing.T) {
	full := fullContext()
	full.RecentChanges = nil
	for i := 0; i < 25; i++ {
		full.RecentChanges = append(full.RecentChanges, fmt.Sprintf("change %d", i))
	}

	out := FilterBySpecialization(full, "backend", nil)
	require.Len(t, out.RecentChanges, 10)
	assert.Equal(t, "change 15", out.RecentChanges[0], "summary keeps the last 10 entries")
	assert.Equal(t, "change 24", out.RecentChanges[9])
}

func TestFilterBySpecialization_UnknownFallsBackToBoundedSubset(t *testing.T) {
	full := fullContext()
	for i := 0; i < 20; i++ {
		full.Files = append(full.Files, fmt.Sprintf("extra/file%d.txt", i))
	}

	out := FilterBySpecialization(full, "astrology", nil)
	assert.Len(t, out.Files, 10, "generic fallback is bounded to the first 10 files")
	assert.Len(t, out.Payload, 4, "no deep filtering in the generic fallback")
	assert.NotEmpty(t, out.Tasks)
}

func TestFilterBySpecialization_Deterministic(t *testing.T) {
	full := fullContext()
	shared := map[string]any{"api": true, "ui": true}

	first := FilterBySpecialization(full, "frontend", shared)
	second := FilterBySpecialization(full, "frontend", shared)
	assert.Equal(t, first, second)
}

func TestFilterBySpecialization_Database(t *testing.T) {
	out := FilterBySpecialization(fullContext(), "database", nil)
	assert.Equal(t, []string{"migrations/001_users.sql"}, out.Files)
	assert.Contains(t, out.Payload, "schema")
}
