// Package v1 provides the versioned HTTP handlers.
package v1

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/xiaot623/gogo/apm/internal/hub"
	"github.com/xiaot623/gogo/apm/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service  *service.Service
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, h *hub.Hub) *Handler {
	return &Handler{
		service: service,
		hub:     h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers routes with the echo server. Everything under /v1
// goes through auth.
func (h *Handler) RegisterRoutes(e *echo.Echo, auth echo.MiddlewareFunc) {
	e.GET("/health", h.Health)

	g := e.Group("/v1", auth)

	// Tool analytics
	g.GET("/analytics/tools/usage", h.GetToolUsage)
	g.GET("/analytics/tools/:tool_name/usage", h.GetToolUsageByName)
	g.GET("/analytics/tools/:tool_name/logs", h.GetToolLogs)

	// Event log
	g.POST("/events", h.RecordEvent)
	g.GET("/events", h.ListEvents)
	g.GET("/events/stream", h.StreamEvents)

	// Toolkits and resources
	g.GET("/toolkits", h.ListToolkits)
	g.POST("/agents/:agent_id/resources", h.AddResource)
	g.GET("/agents/:agent_id/resource_summary", h.GetResourceSummary)

	// OAuth
	g.POST("/oauth/twitter/request_token", h.TwitterRequestToken)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
