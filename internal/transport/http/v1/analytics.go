package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/gogo/apm/internal/auth"
)

// GetToolUsage reports usage of every tool in the caller's organisation.
func (h *Handler) GetToolUsage(c echo.Context) error {
	usage, err := h.service.CalculateToolUsage(c.Request().Context(), auth.OrgID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, usage)
}

// GetToolUsageByName reports usage of one tool; {} when it was never used.
func (h *Handler) GetToolUsageByName(c echo.Context) error {
	summary, err := h.service.GetToolUsageByName(c.Request().Context(), auth.OrgID(c), c.Param("tool_name"))
	if err != nil {
		return writeError(c, err)
	}
	if summary == nil {
		return c.JSON(http.StatusOK, map[string]any{})
	}
	return c.JSON(http.StatusOK, summary)
}

// GetToolLogs lists the completed runs that used a tool.
func (h *Handler) GetToolLogs(c echo.Context) error {
	records, err := h.service.GetToolEventsByName(c.Request().Context(), auth.OrgID(c), c.Param("tool_name"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, records)
}
