package server

import (
	"github.com/labstack/echo/v4"

	"github.com/qrave1/meetsignal/internal/infra/ports/http/handlers"
	"github.com/qrave1/meetsignal/internal/infra/ports/http/middleware"
)

func New(
	iceHandler *handlers.IceHandler,
	wsHandler *handlers.WebSocketHandler,
) *echo.Echo {
	e := echo.New()

	e.HideBanner = true

	e.Use(middleware.SlogLogger())
	e.Use(middleware.PrometheusMiddleware())

	e.GET("/ws", wsHandler.Handle)

	api := e.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ice", iceHandler.IceServers)
		}
	}

	return e
}
