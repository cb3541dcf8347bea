package http

import "github.com/labstack/echo/v4"

// Handler is anything that mounts bridge routes on the server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}
