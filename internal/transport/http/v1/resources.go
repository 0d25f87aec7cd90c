package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/gogo/apm/internal/auth"
	"github.com/xiaot623/gogo/apm/internal/oauth1"
	"github.com/xiaot623/gogo/apm/internal/service"
)

// ListToolkits returns the toolkit catalog with tools and config keys.
func (h *Handler) ListToolkits(c echo.Context) error {
	toolkits, err := h.service.ListToolkits(c.Request().Context(), auth.OrgID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toolkits)
}

// AddResource uploads a text resource for an agent.
func (h *Handler) AddResource(c echo.Context) error {
	agentID, err := strconv.ParseInt(c.Param("agent_id"), 10, 64)
	if err != nil {
		return badRequest(c, "agent_id must be an integer")
	}
	var req service.ResourceInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.service.AddResource(c.Request().Context(), auth.OrgID(c), agentID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// GetResourceSummary returns the agent's combined resource summary. The
// "default" query parameter is returned when none exists.
func (h *Handler) GetResourceSummary(c echo.Context) error {
	agentID, err := strconv.ParseInt(c.Param("agent_id"), 10, 64)
	if err != nil {
		return badRequest(c, "agent_id must be an integer")
	}

	summary, err := h.service.GetResourceSummary(c.Request().Context(), auth.OrgID(c), agentID, c.QueryParam("default"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"resource_summary": summary})
}

// TwitterRequestToken starts the Twitter OAuth1 flow.
func (h *Handler) TwitterRequestToken(c echo.Context) error {
	var req oauth1.Credentials
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	token, err := h.service.TwitterRequestToken(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, token)
}
