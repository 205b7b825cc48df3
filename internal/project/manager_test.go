package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	rec, err := NewRecord("shop", "/tmp/shop", "storefront rebuild", 3, []string{"api", "ui"})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, 3, rec.PhaseCount)
	assert.Equal(t, []string{"api", "ui"}, rec.Agents)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestNewRecord_Validation(t *testing.T) {
	_, err := NewRecord("", "/tmp/x", "", 1, nil)
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = NewRecord("x", "", "", 1, nil)
	assert.ErrorIs(t, err, ErrEmptyRoot)

	_, err = NewRecord("x", "/tmp/x", "", 0, nil)
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestManager_SaveGetList(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	rec, err := NewRecord("shop", "/tmp/shop", "", 2, []string{"api"})
	require.NoError(t, err)
	require.NoError(t, m.Save(rec))

	got, err := m.Get("shop")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.PhaseCount, got.PhaseCount)

	names, err := m.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"shop"}, names)
}

func TestManager_GetMissing(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, err = m.Get("absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_GetCorrupt(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{oops"), 0o600))

	_, err = m.Get("bad")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestManager_Remove(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	rec, err := NewRecord("shop", "/tmp/shop", "", 1, nil)
	require.NoError(t, err)
	require.NoError(t, m.Save(rec))
	require.NoError(t, m.Remove("shop"))
	require.NoError(t, m.Remove("shop"), "removing an absent record is a no-op")

	_, err = m.Get("shop")
	assert.ErrorIs(t, err, ErrNotFound)
}
