package handler // HTTP handlers for the auth endpoints

import (
	"net/http" // status codes

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Health is the liveness check used by load balancers and monitoring. It
// does not touch the database, so a slow MySQL never marks the process dead.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok") // plain text "ok" with 200
}
