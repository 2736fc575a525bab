package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthCheck reports liveness. Connections is optional.
func HealthCheck(connections func() int) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := echo.Map{
			"status":  "healthy",
			"service": "shelfstream",
		}
		if connections != nil {
			body["connections"] = connections()
		}
		return c.JSON(http.StatusOK, body)
	}
}
