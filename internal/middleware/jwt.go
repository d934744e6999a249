package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kgrill/auth-core/internal/model"
	"github.com/kgrill/auth-core/internal/service"
	"github.com/kgrill/auth-core/internal/utils"
)

// SessionChecker resolves an access token to its live session.
type SessionChecker interface {
	Check(ctx context.Context, raw string) (model.Session, error)
}

// JWTAuth validates the Bearer access token and then asks the guard whether
// its session is still valid, so a logged out or superseded token is refused
// even before it expires. On success the claims and the account id are
// stored in the context under the Key* names.
func JWTAuth(signer *utils.TokenSigner, guard SessionChecker, clock service.Clock) echo.MiddlewareFunc {
	if clock == nil {
		clock = service.SystemClock
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := BearerToken(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "missing bearer token"})
			}
			claims, err := signer.VerifyAt(raw, utils.TokenTypeAccess, clock.Now())
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": service.KindTokenNotFound, "message": "invalid token"})
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
			defer cancel()
			sess, err := guard.Check(ctx, raw)
			if err != nil {
				kind := service.KindOf(err)
				if kind.Category() != service.CategoryToken {
					c.Logger().Errorf("jwt-auth: session check failed: %v", err)
					return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "internal server error"})
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": kind, "message": "session is no longer valid, please sign in again"})
			}

			c.Set(KeyAccountID, sess.AccountID)
			c.Set(KeyEmail, claims.Subject)
			c.Set(KeyRole, claims.Role)
			c.Set(KeyFullName, claims.FullName)
			c.Set(KeyAccessToken, raw)
			return next(c)
		}
	}
}
