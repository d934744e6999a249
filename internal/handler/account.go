package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kgrill/auth-core/internal/model"
)

type accountAdmin interface {
	Update(ctx context.Context, id string, role *model.Role, locked *bool) (model.Account, error)
}

// AccountHandler serves administrator account endpoints.
type AccountHandler struct {
	Admin accountAdmin
}

func NewAccountHandler(a accountAdmin) *AccountHandler { return &AccountHandler{Admin: a} }

type updateAccountReq struct {
	Role   *string `json:"role"`
	Locked *bool   `json:"locked"`
}

type accountResp struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Role      model.Role `json:"role"`
	Locked    bool       `json:"locked"`
	Enabled   bool       `json:"enabled"`
}

// Update changes an account's role and/or lock flag.
func (h *AccountHandler) Update(c echo.Context) error {
	var req updateAccountReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	var role *model.Role
	if req.Role != nil {
		r := model.Role(*req.Role)
		role = &r
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	a, err := h.Admin.Update(ctx, c.Param("id"), role, req.Locked)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, accountResp{
		ID: a.ID, Email: a.Email, FirstName: a.FirstName, LastName: a.LastName,
		Role: a.Role, Locked: a.Locked, Enabled: a.Enabled,
	})
}
