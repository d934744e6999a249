package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kgrill/auth-core/internal/model"
)

// Context keys set by JWTAuth.
const (
	KeyAccountID   = "account_id"
	KeyEmail       = "email"
	KeyRole        = "role"
	KeyFullName    = "full_name"
	KeyAccessToken = "access_token"
)

// BearerToken returns the token from an "Authorization: Bearer" header, or
// "" when there is none.
func BearerToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

// CurrentIdentity rebuilds the caller's identity from the context values
// JWTAuth stored. ok is false on routes without JWTAuth.
func CurrentIdentity(c echo.Context) (model.Identity, bool) {
	id, _ := c.Get(KeyAccountID).(string)
	if id == "" {
		return model.Identity{}, false
	}
	email, _ := c.Get(KeyEmail).(string)
	role, _ := c.Get(KeyRole).(string)
	name, _ := c.Get(KeyFullName).(string)
	return model.Identity{AccountID: id, Email: email, Role: model.Role(role), FullName: name}, true
}
