package contextstore

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Store, *httptest.Server) {
	t.Helper()
	store := NewStore(zap.NewNop())

	e := echo.New()
	NewHandler(store, zap.NewNop()).RegisterRoutes(e)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return store, srv
}

func TestHandler_Health(t *testing.T) {
	store, srv := newTestServer(t)

	_, err := store.Update("p1", "a", map[string]any{"x": 1}, UpdateOptions{})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.ActiveContextCount)
	assert.Zero(t, body.ActiveConnectionCount)
	assert.False(t, body.Timestamp.IsZero())
}

func TestHandler_PutThenGetContext(t *testing.T) {
	_, srv := newTestServer(t)

	put, err := http.NewRequest(http.MethodPut, srv.URL+"/context/p1",
		strings.NewReader(`{"context":{"x":1,"y":2},"agentId":"agent-a"}`))
	require.NoError(t, err)
	put.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(put)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var putBody putContextResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&putBody))
	assert.GreaterOrEqual(t, putBody.TokensSaved, 0)

	get, err := http.Get(srv.URL + "/context/p1")
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)

	var getBody getContextResponse
	require.NoError(t, json.NewDecoder(get.Body).Decode(&getBody))
	assert.Equal(t, int64(1), getBody.Version)
	assert.Equal(t, float64(1), getBody.Context["x"])
	assert.Equal(t, float64(2), getBody.Context["y"])
}

func TestHandler_GetUnknownProject(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/context/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_PutRejectsMissingAgent(t *testing.T) {
	_, srv := newTestServer(t)

	put, err := http.NewRequest(http.MethodPut, srv.URL+"/context/p1",
		strings.NewReader(`{"context":{"x":1}}`))
	require.NoError(t, err)
	put.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(put)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_Metrics(t *testing.T) {
	store, srv := newTestServer(t)

	_, err := store.Update("p1", "a", map[string]any{"x": "value"}, UpdateOptions{CreateDiff: true})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Positive(t, stats.TotalRequests)
	assert.Contains(t, stats.ContextSizes, "p1")
}
