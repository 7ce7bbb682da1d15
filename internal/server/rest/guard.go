package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dmitrijs2005/domainx/internal/common"
	"github.com/dmitrijs2005/domainx/internal/server/models"
)

const accountKey = "account"

// errPendingApproval answers guarded requests of accounts whose approval
// was withdrawn after login.
var errPendingApproval = echo.NewHTTPError(http.StatusForbidden, "Access denied. Account pending approval.")

// bearerToken reads the token from the Authorization header, falling back
// to the kind's cookie when it has one.
func bearerToken(c echo.Context, cookieName string) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(h, common.AuthorizationHeaderPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, common.AuthorizationHeaderPrefix))
	}
	if cookieName == "" {
		return ""
	}
	if ck, err := c.Cookie(cookieName); err == nil {
		return ck.Value
	}
	return ""
}

// Guard admits requests carrying a valid token of svc's kind that belongs
// to an active, approved account, and stores that account on the context.
func Guard(svc AccountService) echo.MiddlewareFunc {
	cookie := svc.Policy().CookieName
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c, cookie)
			if token == "" {
				return common.ErrorUnauthorized
			}

			acc, err := svc.Authenticate(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, common.ErrAccountPendingApproval) {
					return errPendingApproval
				}
				return err
			}

			c.Set(accountKey, acc)
			return next(c)
		}
	}
}

// currentAccount returns the account stored by Guard.
func currentAccount(c echo.Context) *models.Account {
	acc, _ := c.Get(accountKey).(*models.Account)
	return acc
}
