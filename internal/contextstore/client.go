package contextstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultClientTimeout bounds every call to the shared context service.
// The store must never block an agent's own task execution.
const DefaultClientTimeout = 3 * time.Second

// Client talks to a shared context service, degrading to a local
// per-process cache when the service is unreachable.
//
// Degraded mode costs only the token-saving benefit: with zero
// cross-agent sharing each agent still sees its own writes, so
// task-completion correctness is unaffected. The failure is logged once
// per session, not per attempt.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	warnOnce sync.Once
	local    *Store
}

// NewClient creates a client for the service at baseURL.
//
// An empty baseURL configures a purely local client: no service, no
// warning, no cross-agent sharing. A non-positive timeout falls back to
// DefaultClientTimeout.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
		local:   NewStore(logger.Named("local-context")),
	}
}

// Get fetches a project's context, falling back to the local cache when
// the service is unreachable.
func (c *Client) Get(ctx context.Context, projectID string) (map[string]any, int64, error) {
	if c.baseURL == "" {
		return c.localGet(projectID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/context/%s", c.baseURL, projectID), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building context request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.warnDegraded(err)
		return c.localGet(projectID)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, 0, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	default:
		c.warnDegraded(fmt.Errorf("unexpected status %d", resp.StatusCode))
		return c.localGet(projectID)
	}

	var body getContextResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, 0, fmt.Errorf("decoding context response: %w", err)
	}
	return body.Context, body.Version, nil
}

// Update publishes a partial context, returning the tokens saved.
// Unreachable service falls back to the local cache.
func (c *Client) Update(ctx context.Context, projectID, agentID string, partial map[string]any) (int, error) {
	if agentID == "" {
		return 0, ErrEmptyAgentID
	}
	if c.baseURL == "" {
		return c.localUpdate(projectID, agentID, partial)
	}

	payload, err := json.Marshal(putContextRequest{Context: partial, AgentID: agentID})
	if err != nil {
		return 0, fmt.Errorf("marshaling context update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("%s/context/%s", c.baseURL, projectID), bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("building context update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.warnDegraded(err)
		return c.localUpdate(projectID, agentID, partial)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.warnDegraded(fmt.Errorf("unexpected status %d", resp.StatusCode))
		return c.localUpdate(projectID, agentID, partial)
	}

	var body putContextResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decoding context update response: %w", err)
	}
	return body.TokensSaved, nil
}

func (c *Client) localGet(projectID string) (map[string]any, int64, error) {
	ctx, err := c.local.Get(projectID)
	if err != nil {
		return nil, 0, err
	}
	return ctx.Payload, ctx.Version, nil
}

func (c *Client) localUpdate(projectID, agentID string, partial map[string]any) (int, error) {
	// Diffs stay enabled locally so version and accounting semantics
	// match the service, but nothing is shared across agents.
	result, err := c.local.Update(projectID, agentID, partial, UpdateOptions{CreateDiff: true})
	if err != nil {
		return 0, err
	}
	return result.TokensSaved, nil
}

func (c *Client) warnDegraded(err error) {
	c.warnOnce.Do(func() {
		c.logger.Warn("Shared context service unreachable, using local per-process cache",
			zap.String("base_url", c.baseURL),
			zap.Error(err))
	})
}
