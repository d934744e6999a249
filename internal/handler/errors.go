package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kgrill/auth-core/internal/service"
)

// statusFor maps an error category to its HTTP status.
func statusFor(kind service.Kind) int {
	switch kind.Category() {
	case service.CategoryValidation, service.CategoryActivation:
		return http.StatusBadRequest
	case service.CategoryAuthentication, service.CategoryToken:
		return http.StatusUnauthorized
	case service.CategoryNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// writeError translates a service error into a JSON response. Only the
// kind, the client message and validation fields are exposed; anything
// untyped is logged and reported as a generic 500.
func writeError(c echo.Context, err error) error {
	var se *service.Error
	if !errors.As(err, &se) || statusFor(se.Kind) == http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": service.KindInternal, "message": "internal server error"})
	}
	body := echo.Map{"error": se.Kind, "message": se.Message}
	if len(se.Fields) > 0 {
		body["fields"] = se.Fields
	}
	return c.JSON(statusFor(se.Kind), body)
}

func invalidBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": service.KindValidation, "message": "invalid body"})
}
