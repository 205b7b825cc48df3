package contextstore

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Handler exposes the shared context store over HTTP.
type Handler struct {
	store  *Store
	logger *zap.Logger
}

// NewHandler creates an HTTP handler over the store.
func NewHandler(store *Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes mounts the context store routes on an Echo instance.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.handleHealth)
	e.GET("/context/:projectID", h.handleGetContext)
	e.PUT("/context/:projectID", h.handlePutContext)
	e.GET("/metrics", h.handleMetrics)
}

// healthResponse is the JSON response for GET /health.
type healthResponse struct {
	Status                string    `json:"status"`
	ActiveContextCount    int       `json:"activeContextCount"`
	ActiveConnectionCount int       `json:"activeConnectionCount"`
	Timestamp             time.Time `json:"timestamp"`
}

// getContextResponse is the JSON response for GET /context/{projectId}.
type getContextResponse struct {
	Context     map[string]any `json:"context"`
	Version     int64          `json:"version"`
	TokensSaved int64          `json:"tokensSaved"`
}

// putContextRequest is the JSON body for PUT /context/{projectId}.
type putContextRequest struct {
	Context map[string]any `json:"context"`
	AgentID string         `json:"agentId"`
}

// putContextResponse is the JSON response for PUT /context/{projectId}.
type putContextResponse struct {
	TokensSaved int `json:"tokensSaved"`
}

func (h *Handler) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:                "ok",
		ActiveContextCount:    h.store.ActiveContextCount(),
		ActiveConnectionCount: h.store.SubscriberCount(),
		Timestamp:             time.Now().UTC(),
	})
}

func (h *Handler) handleGetContext(c echo.Context) error {
	projectID := c.Param("projectID")

	ctx, err := h.store.Get(projectID)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, getContextResponse{
		Context:     ctx.Payload,
		Version:     ctx.Version,
		TokensSaved: h.store.TokensSavedFor(projectID),
	})
}

func (h *Handler) handlePutContext(c echo.Context) error {
	projectID := c.Param("projectID")

	var req putContextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.store.Update(projectID, req.AgentID, req.Context, UpdateOptions{
		CreateDiff: true,
		Broadcast:  true,
	})
	if err != nil {
		if errors.Is(err, ErrEmptyAgentID) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, putContextResponse{TokensSaved: result.TokensSaved})
}

func (h *Handler) handleMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.Stats())
}
