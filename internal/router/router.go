// Package router registers the HTTP routes of the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/kgrill/auth-core/internal/handler"
	"github.com/kgrill/auth-core/internal/middleware"
	"github.com/kgrill/auth-core/internal/model"
)

// RegisterRoutes registers routes that need no authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the account and session routes. Everything under
// /auth is public; logout and refresh read their tokens themselves so a
// stale token can still be presented. /v1 routes go through jwtAuth.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtAuth echo.MiddlewareFunc) {
	g := e.Group("/auth")
	g.POST("/register", a.Register)                  // create a disabled account, mail a code
	g.POST("/activate-account", a.Activate)          // redeem a code (body or ?token=)
	g.POST("/resend-activation", a.ResendActivation) // fresh code for a pending account
	g.POST("/signin", a.Signin)                      // email + password -> token pair
	g.POST("/refresh-token", a.Refresh)              // rotate the presented session
	g.POST("/logout", a.Logout)                      // revoke the presented session
	g.POST("/google-signin", a.GoogleSignin)         // Google ID token -> token pair

	v1 := e.Group("/v1", jwtAuth) // Bearer + session guard
	v1.GET("/me", a.Me)
}

// RegisterAdmin registers administrator routes; they require an ADMIN
// access token.
func RegisterAdmin(e *echo.Echo, h *handler.AccountHandler, jwtAuth echo.MiddlewareFunc) {
	admin := e.Group("/v1/admin", jwtAuth, middleware.RequireRole(model.RoleAdmin))
	admin.PATCH("/accounts/:id", h.Update)
}
