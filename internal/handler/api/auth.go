package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"SaxoBridge/internal/domain/models"
	xhttp "SaxoBridge/pkg/http"
)

const (
	ctxUser  = "user"
	ctxToken = "token"
)

// Authenticator is the token manager surface the handlers need.
type Authenticator interface {
	ValidToken(ctx context.Context, user string) (string, error)
	AuthorizeURL(user string) string
	Status(ctx context.Context, user string) (bool, error)
	HasRecord(ctx context.Context, user string) (bool, error)
	ExchangeCode(ctx context.Context, state, code string) (string, error)
}

// usernameOf takes the username from HTTP Basic credentials, falling
// back to the tusername query parameter.
func usernameOf(c echo.Context) string {
	if user, _, ok := c.Request().BasicAuth(); ok && user != "" {
		return user
	}
	return c.QueryParam("tusername")
}

// RequireUser rejects requests that carry no username.
func RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := usernameOf(c)
			if user == "" {
				return xhttp.UnauthorizedResponse(c)
			}
			c.Set(ctxUser, user)
			return next(c)
		}
	}
}

// RequireToken resolves a valid bearer for the user or answers with the
// reauthorization record.
func RequireToken(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := auth.ValidToken(c.Request().Context(), userOf(c))
			if err != nil {
				return failure(c, err)
			}
			c.Set(ctxToken, token)
			return next(c)
		}
	}
}

func userOf(c echo.Context) string {
	s, _ := c.Get(ctxUser).(string)
	return s
}

func tokenOf(c echo.Context) string {
	s, _ := c.Get(ctxToken).(string)
	return s
}

type reauthBody struct {
	Status    string `json:"status"`
	ErrorCode string `json:"errorcode"`
	ErrorDesc string `json:"errordesc"`
}

// failure writes err, using the 990 record charting clients understand
// for missing authorization.
func failure(c echo.Context, err error) error {
	var re *models.ReauthRequiredError
	if errors.As(err, &re) {
		return c.JSON(http.StatusOK, reauthBody{Status: "0", ErrorCode: "990", ErrorDesc: re.AuthURL})
	}
	return errorResponse(c, err)
}
