package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dmitrijs2005/domainx/internal/server/models"
	"github.com/dmitrijs2005/domainx/internal/server/services"
)

// AccountService is the façade the handlers drive. *services.AccountService
// implements it.
type AccountService interface {
	Policy() services.Policy
	Register(ctx context.Context, in services.RegisterInput) (models.Profile, error)
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	Authenticate(ctx context.Context, token string) (*models.Account, error)
	GetProfile(ctx context.Context, id string) (models.Profile, error)
	UpdateProfile(ctx context.Context, id string, in services.ProfileUpdate) (models.Profile, error)
	ChangePassword(ctx context.Context, id string, in services.ChangePasswordInput) error
	Logout(ctx context.Context, id string) error
	ForgotPassword(ctx context.Context, in services.ForgotPasswordInput) error
	ResetPassword(ctx context.Context, in services.ResetPasswordInput) error
	VerifyResetToken(ctx context.Context, raw string) (string, error)
}

var _ AccountService = (*services.AccountService)(nil)

// accountHandler serves /api/{kind}/auth.
type accountHandler struct {
	svc          AccountService
	kind         string
	cookieName   string
	secureCookie bool
}

func (h *accountHandler) routes(g *echo.Group) {
	g.POST("/register", h.register)
	g.POST("/login", h.login)
	g.POST("/forgot-password", h.forgotPassword)
	g.POST("/reset-password", h.resetPassword)
	g.GET("/verify-reset-token/:token", h.verifyResetToken)

	// Per-route middleware, so unknown paths still answer 404.
	guard := Guard(h.svc)
	g.GET("/verify", h.verify, guard)
	g.GET("/profile", h.getProfile, guard)
	g.PUT("/profile", h.updateProfile, guard)
	g.PUT("/change-password", h.changePassword, guard)
	g.POST("/logout", h.logout, guard)
}

func bindValid(c echo.Context, in any) error {
	if err := c.Bind(in); err != nil {
		return errBadBody
	}
	return c.Validate(in)
}

func (h *accountHandler) register(c echo.Context) error {
	var in services.RegisterInput
	if err := bindValid(c, &in); err != nil {
		return err
	}

	p, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("%s account created successfully", title(h.kind))
	if h.svc.Policy().RequiresApproval {
		msg += ". Please wait for admin approval."
	}
	return created(c, msg, p)
}

func (h *accountHandler) login(c echo.Context) error {
	var in services.LoginInput
	if err := bindValid(c, &in); err != nil {
		return err
	}

	res, err := h.svc.Login(c.Request().Context(), in)
	if err != nil {
		return err
	}

	if h.cookieName != "" {
		c.SetCookie(h.cookie(res.Token, res.TTL))
	}
	return ok(c, "Login successful", res)
}

// verify answers with the account the guard resolved from the token.
func (h *accountHandler) verify(c echo.Context) error {
	return ok(c, "Token is valid", currentAccount(c).PublicView())
}

func (h *accountHandler) getProfile(c echo.Context) error {
	p, err := h.svc.GetProfile(c.Request().Context(), currentAccount(c).ID)
	if err != nil {
		return err
	}
	return ok(c, "Profile retrieved successfully", p)
}

func (h *accountHandler) updateProfile(c echo.Context) error {
	var in services.ProfileUpdate
	if err := bindValid(c, &in); err != nil {
		return err
	}

	p, err := h.svc.UpdateProfile(c.Request().Context(), currentAccount(c).ID, in)
	if err != nil {
		return err
	}
	return ok(c, "Profile updated successfully", p)
}

func (h *accountHandler) changePassword(c echo.Context) error {
	var in services.ChangePasswordInput
	if err := bindValid(c, &in); err != nil {
		return err
	}

	if err := h.svc.ChangePassword(c.Request().Context(), currentAccount(c).ID, in); err != nil {
		return err
	}
	return ok(c, "Password changed successfully", nil)
}

func (h *accountHandler) logout(c echo.Context) error {
	if err := h.svc.Logout(c.Request().Context(), currentAccount(c).ID); err != nil {
		return err
	}
	if h.cookieName != "" {
		c.SetCookie(h.cookie("", -1))
	}
	return ok(c, "Logout successful", nil)
}

func (h *accountHandler) forgotPassword(c echo.Context) error {
	var in services.ForgotPasswordInput
	if err := bindValid(c, &in); err != nil {
		return err
	}

	if err := h.svc.ForgotPassword(c.Request().Context(), in); err != nil {
		return err
	}
	return ok(c, fmt.Sprintf("If a %s account exists with this email, you will receive a password reset link.", h.kind), nil)
}

func (h *accountHandler) resetPassword(c echo.Context) error {
	var in services.ResetPasswordInput
	if err := bindValid(c, &in); err != nil {
		return err
	}

	if err := h.svc.ResetPassword(c.Request().Context(), in); err != nil {
		return err
	}
	return ok(c, "Password has been reset successfully. You can now login with your new password.", nil)
}

func (h *accountHandler) verifyResetToken(c echo.Context) error {
	email, err := h.svc.VerifyResetToken(c.Request().Context(), c.Param("token"))
	if err != nil {
		return err
	}
	return ok(c, "Token is valid", map[string]string{"email": email})
}

// cookie builds the session cookie. A negative ttl expires it.
func (h *accountHandler) cookie(value string, ttl time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     h.cookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	}
	if ttl < 0 {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		return ck
	}
	ck.MaxAge = int(ttl / time.Second)
	return ck
}

func title(kind string) string {
	if kind == "" {
		return kind
	}
	return string(kind[0]-'a'+'A') + kind[1:]
}
