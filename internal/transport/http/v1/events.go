package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/xiaot623/gogo/apm/internal/auth"
	"github.com/xiaot623/gogo/apm/internal/domain"
)

// RecordEvent appends an event to the caller's event log.
func (h *Handler) RecordEvent(c echo.Context) error {
	var req domain.EventInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	event, err := h.service.RecordEvent(c.Request().Context(), auth.OrgID(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, event)
}

// ListEvents pages through the event log. Query parameters: agent_id,
// after_id, limit and any number of name values.
func (h *Handler) ListEvents(c echo.Context) error {
	var filter domain.EventFilter
	var err error

	if filter.AgentID, err = int64Query(c, "agent_id"); err != nil {
		return badRequest(c, "agent_id must be an integer")
	}
	if filter.AfterID, err = int64Query(c, "after_id"); err != nil {
		return badRequest(c, "after_id must be an integer")
	}
	limit, err := int64Query(c, "limit")
	if err != nil {
		return badRequest(c, "limit must be an integer")
	}
	filter.Limit = int(limit)
	for _, name := range c.QueryParams()["name"] {
		filter.Names = append(filter.Names, domain.EventName(name))
	}

	events, err := h.service.ListEvents(c.Request().Context(), auth.OrgID(c), filter)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, events)
}

// StreamEvents upgrades to a websocket that receives the organisation's new
// events as they are recorded.
func (h *Handler) StreamEvents(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn().Err(err).Msg("failed to upgrade websocket")
		return err
	}
	conn := h.hub.Serve(ws, auth.OrgID(c))
	log.Debug().Str("conn_id", conn.ID).Int64("org_id", conn.OrgID).Msg("event stream opened")
	return nil
}

func int64Query(c echo.Context, name string) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
