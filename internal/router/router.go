package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/athlia-api/internal/handler"
	"github.com/iliyamo/athlia-api/internal/metrics"
	"github.com/iliyamo/athlia-api/internal/middleware"
	"github.com/iliyamo/athlia-api/internal/utils"
)

// RegisterRoutes registers the unauthenticated service routes: the index,
// the health check and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, m *metrics.Metrics) {
	e.GET("/", handler.Root)
	e.GET("/health", handler.Health)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
}

// RegisterAuth registers the credential endpoints under /auth. register,
// login and refresh sit behind limiter; /auth/password needs an access token
// for an existing account.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, tokens *utils.TokenService, accounts middleware.AccountLookup, m *metrics.Metrics, limiter echo.MiddlewareFunc) {
	g := e.Group("/auth")
	if limiter != nil {
		g.POST("/register", a.Register, limiter)
		g.POST("/login", a.Login, limiter)
		g.POST("/refresh", a.Refresh, limiter)
	} else {
		g.POST("/register", a.Register)
		g.POST("/login", a.Login)
		g.POST("/refresh", a.Refresh)
	}
	g.POST("/password", a.ChangePassword, middleware.TokenAuth(tokens, m), middleware.RequireAccount(accounts))
}

// RegisterUsers registers the profile endpoints. Every route requires an
// access token whose account still exists.
func RegisterUsers(e *echo.Echo, u *handler.UsersHandler, tokens *utils.TokenService, accounts middleware.AccountLookup, m *metrics.Metrics) {
	g := e.Group("/users", middleware.TokenAuth(tokens, m), middleware.RequireAccount(accounts))
	g.POST("", u.Upsert)
	g.GET("/me", u.Me)
}
