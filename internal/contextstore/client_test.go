package contextstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestClient_AgainstLiveService(t *testing.T) {
	_, srv := newTestServer(t)
	c := NewClient(srv.URL, time.Second, zap.NewNop())
	ctx := context.Background()

	saved, err := c.Update(ctx, "p1", "agent-a", map[string]any{"x": 1, "y": 2})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, saved, 0)

	payload, version, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, float64(1), payload["x"])
}

func TestClient_GetUnknownProjectIsNotFound(t *testing.T) {
	_, srv := newTestServer(t)
	c := NewClient(srv.URL, time.Second, zap.NewNop())

	_, _, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestClient_DegradedFallback(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	// Nothing listens on this port; every call fails fast and falls
	// back to the local cache.
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond, logger)
	ctx := context.Background()

	_, err := c.Update(ctx, "p1", "agent-a", map[string]any{"x": 1})
	require.NoError(t, err, "degraded mode must not surface network errors")

	payload, version, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, 1, payload["x"])

	// A second failing call must not log a second warning.
	_, err = c.Update(ctx, "p1", "agent-a", map[string]any{"x": 2})
	require.NoError(t, err)

	warnings := logs.FilterMessageSnippet("unreachable").All()
	assert.Len(t, warnings, 1, "fallback is logged once per session, not per attempt")
}

func TestClient_LocalOnlyMode(t *testing.T) {
	c := NewClient("", 0, zap.NewNop())
	ctx := context.Background()

	_, err := c.Update(ctx, "p1", "agent-a", map[string]any{"k": "v"})
	require.NoError(t, err)

	payload, version, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, "v", payload["k"])
}
