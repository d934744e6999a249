package handler

import (
	"context"  // per-request timeouts for store calls
	"errors"   // matching service error kinds
	"net/http" // HTTP status codes
	"strings"  // trimming raw tokens
	"time"     // timeout durations

	validation "github.com/go-ozzo/ozzo-validation/v4"  // request payload rules
	"github.com/go-ozzo/ozzo-validation/v4/is"          // email format rule
	"github.com/labstack/echo/v4"                       // Echo framework for HTTP routing

	"github.com/kgrill/auth-core/internal/middleware" // Bearer token extraction, current identity
	"github.com/kgrill/auth-core/internal/model"      // request and response shapes
	"github.com/kgrill/auth-core/internal/service"    // activation, authentication and session services
)

// requestTimeout bounds every store round trip made on behalf of a request.
const requestTimeout = 5 * time.Second

type registrar interface {
	Register(ctx context.Context, in model.Registration) (model.Account, error)
}

type activator interface {
	Validate(ctx context.Context, code string) (model.Account, error)
	Resend(ctx context.Context, email string) error
}

type authenticator interface {
	Authenticate(ctx context.Context, email, password string) (model.Identity, error)
	AuthenticateFederated(ctx context.Context, p model.FederatedProfile) (model.Identity, error)
}

type issuer interface {
	Issue(ctx context.Context, id model.Identity) (model.TokenPair, error)
}

type refresher interface {
	Refresh(ctx context.Context, raw string) (model.TokenPair, error)
}

type logouter interface {
	Logout(ctx context.Context, raw string) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Registrar  registrar
	Activation activator
	Auth       authenticator
	Issuer     issuer
	Refresher  refresher
	Logouts    logouter
}

func NewAuthHandler(r registrar, a activator, auth authenticator, i issuer, rf refresher, l logouter) *AuthHandler {
	return &AuthHandler{Registrar: r, Activation: a, Auth: auth, Issuer: i, Refresher: rf, Logouts: l}
}

// ----- DTOs -----

type signinReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r signinReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Password, validation.Required),
	)
}

type activateReq struct {
	Code string `json:"code"`
}

type resendReq struct {
	Email string `json:"email"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type federatedReq model.FederatedProfile

func (r federatedReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.IDToken, validation.Required),
	)
}

// Register creates a disabled account and sends its activation code.
func (h *AuthHandler) Register(c echo.Context) error {
	var req model.Registration
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	account, err := h.Registrar.Register(ctx, req)
	if errors.Is(err, service.ErrDispatchFailed) {
		// The account exists; the client can ask for the code again.
		c.Logger().Warnf("register %s: %v", account.Email, err)
		return c.JSON(http.StatusAccepted, echo.Map{
			"message": "registration accepted, activation pending",
			"email":   account.Email,
			"warning": "activation email could not be sent, request a new code",
		})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{
		"message": "registration accepted, check your email to activate the account",
		"email":   account.Email,
	})
}

// Activate redeems a code given in the body or as ?token=.
func (h *AuthHandler) Activate(c echo.Context) error {
	var req activateReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = strings.TrimSpace(c.QueryParam("token"))
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	account, err := h.Activation.Validate(ctx, code)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "account activated", "email": account.Email})
}

// ResendActivation answers 202 for any address so it cannot be used to
// find out which emails are registered.
func (h *AuthHandler) ResendActivation(c echo.Context) error {
	var req resendReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	err := h.Activation.Resend(ctx, req.Email)
	switch {
	case err == nil:
	case service.KindOf(err) == service.KindValidation:
		return writeError(c, err)
	case errors.Is(err, service.ErrDispatchFailed):
		c.Logger().Warnf("resend activation: %v", err)
	default:
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": "if the account is awaiting activation, a new code has been sent"})
}

// Signin verifies credentials and returns a fresh token pair.
func (h *AuthHandler) Signin(c echo.Context) error {
	var req signinReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	if err := req.Validate(); err != nil {
		return writeError(c, fieldErrors(err))
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	id, err := h.Auth.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return h.issue(ctx, c, id)
}

// GoogleSignin signs in with a federated profile.
func (h *AuthHandler) GoogleSignin(c echo.Context) error {
	var req federatedReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	if err := req.Validate(); err != nil {
		return writeError(c, fieldErrors(err))
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	id, err := h.Auth.AuthenticateFederated(ctx, model.FederatedProfile(req))
	if err != nil {
		return writeError(c, err)
	}
	return h.issue(ctx, c, id)
}

// Refresh takes the refresh token from the body or the Bearer header and
// rotates the session.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	raw := strings.TrimSpace(req.RefreshToken)
	if raw == "" {
		raw = middleware.BearerToken(c)
	}
	if raw == "" {
		return writeError(c, service.ValidationError(map[string]string{"refreshToken": "cannot be blank"}))
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	pair, err := h.Refresher.Refresh(ctx, raw)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// Logout revokes the session of the Bearer access token. Missing, unknown
// and already revoked tokens all get 200.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Logouts.Logout(ctx, middleware.BearerToken(c)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Me returns the identity behind the current access token.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":       id.AccountID,
		"email":    id.Email,
		"role":     id.Role,
		"fullName": id.FullName,
	})
}

func (h *AuthHandler) issue(ctx context.Context, c echo.Context, id model.Identity) error {
	pair, err := h.Issuer.Issue(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// fieldErrors converts ozzo-validation errors into a validation *Error.
func fieldErrors(err error) error {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}
	fields := make(map[string]string, len(errs))
	for name, fe := range errs {
		fields[name] = fe.Error()
	}
	return service.ValidationError(fields)
}
