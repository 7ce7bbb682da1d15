package rest

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dmitrijs2005/domainx/internal/common"
)

// errBadBody is returned when the request body cannot be decoded.
var errBadBody = echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")

type failure struct {
	status  int
	message string
}

// failures maps domain errors to their HTTP answer. Order matters only in
// that more specific errors come first.
var failures = []struct {
	err error
	failure
}{
	{common.ErrAlreadyExists, failure{http.StatusBadRequest, "User with this email already exists"}},
	{common.ErrIncorrectPassword, failure{http.StatusBadRequest, "Current password is incorrect"}},
	{common.ErrInvalidResetToken, failure{http.StatusBadRequest, "Invalid or expired reset token"}},
	{common.ErrInvalidCredentials, failure{http.StatusUnauthorized, "Invalid credentials"}},
	{common.ErrAccountDeactivated, failure{http.StatusUnauthorized, "Account is deactivated"}},
	{common.ErrInvalidToken, failure{http.StatusUnauthorized, "Access denied. Invalid token."}},
	{common.ErrorUnauthorized, failure{http.StatusUnauthorized, "Access denied. No token provided."}},
	{common.ErrAccountPendingApproval, failure{http.StatusForbidden, "Account is pending admin approval"}},
	{common.ErrorNotFound, failure{http.StatusNotFound, "Account not found"}},
	{common.ErrAccountLocked, failure{http.StatusLocked, "Account is temporarily locked due to too many failed login attempts"}},
	{common.ErrNotificationFailed, failure{http.StatusInternalServerError, "Failed to send reset email. Please try again later."}},
}

// errorHandler renders every error returned by a handler or middleware as
// an envelope. Unknown errors are logged and answered generically.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	ctx := c.Request().Context()
	var out error

	var verr *common.ValidationError
	var herr *echo.HTTPError
	switch {
	case errors.As(err, &verr):
		out = fail(c, http.StatusBadRequest, "Validation failed", verr.Fields)
	case errors.As(err, &herr):
		msg, isString := herr.Message.(string)
		if !isString {
			msg = http.StatusText(herr.Code)
		}
		out = fail(c, herr.Code, msg, nil)
	default:
		f, known := classify(err)
		if !known || f.status >= http.StatusInternalServerError {
			s.logger.Error(ctx, "request failed",
				"error", err.Error(),
				"method", c.Request().Method,
				"path", c.Path(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID))
		}
		out = fail(c, f.status, f.message, nil)
	}

	if out != nil {
		s.logger.Error(ctx, "error writing response", "error", out.Error())
	}
}

func classify(err error) (failure, bool) {
	for _, f := range failures {
		if errors.Is(err, f.err) {
			return f.failure, true
		}
	}
	return failure{http.StatusInternalServerError, "Internal server error"}, false
}
