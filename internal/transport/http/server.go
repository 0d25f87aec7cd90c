// Package http provides the HTTP server for the analytics API.
package http

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"github.com/xiaot623/gogo/apm/internal/auth"
	"github.com/xiaot623/gogo/apm/internal/hub"
	"github.com/xiaot623/gogo/apm/internal/service"
	v1 "github.com/xiaot623/gogo/apm/internal/transport/http/v1"
)

// NewServer creates and configures the HTTP server. Everything except
// /health requires a bearer token issued by authManager.
func NewServer(svc *service.Service, h *hub.Hub, authManager *auth.Manager) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Error != nil || v.Status >= 500 {
				evt = log.Error().Err(v.Error)
			}
			evt.Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	// Handlers
	handler := v1.NewHandler(svc, h)
	handler.RegisterRoutes(e, authManager.Middleware())

	return e
}
