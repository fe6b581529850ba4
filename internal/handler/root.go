package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Endpoints lists the public routes advertised by Root.
var Endpoints = []string{
	"/health",
	"/metrics",
	"/auth/register",
	"/auth/login",
	"/auth/refresh",
	"/auth/password",
	"/users",
	"/users/me",
}

// Root describes the service.
func Root(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"name":      "athlia-api",
		"ok":        true,
		"endpoints": Endpoints,
	})
}

// Health is used by load balancers and monitoring to check the process is up.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}
