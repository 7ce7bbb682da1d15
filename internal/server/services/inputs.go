package services

import (
	"time"

	"github.com/dmitrijs2005/domainx/internal/server/models"
)

// RegisterInput carries every registrable field. Fields that do not apply
// to the service's kind are ignored.
type RegisterInput struct {
	Name          string `json:"name" validate:"required,min=2,max=50"`
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required"`
	Username      string `json:"username" validate:"omitempty,min=3,max=30"`
	Phone         string `json:"phone" validate:"omitempty,min=7,max=20"`
	Company       string `json:"company" validate:"omitempty,max=100"`
	BusinessID    string `json:"businessId" validate:"omitempty,max=50"`
	PortfolioLink string `json:"portfolioLink" validate:"omitempty,url"`
	BusinessType  string `json:"businessType" validate:"omitempty,oneof=individual company agency"`
	Role          string `json:"role" validate:"omitempty,oneof=admin super_admin"`
}

type LoginInput struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"rememberMe"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"omitempty,eqfield=NewPassword"`
}

type ForgotPasswordInput struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordInput struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// ProfileUpdate merges only the fields that are present. A present but
// empty username clears it.
type ProfileUpdate struct {
	Name          *string `json:"name" validate:"omitempty,min=2,max=50"`
	Email         *string `json:"email" validate:"omitempty,email"`
	Username      *string `json:"username" validate:"omitempty,max=30"`
	Phone         *string `json:"phone" validate:"omitempty,max=20"`
	Company       *string `json:"company" validate:"omitempty,max=100"`
	BusinessID    *string `json:"businessId" validate:"omitempty,max=50"`
	PortfolioLink *string `json:"portfolioLink" validate:"omitempty,max=2048"`
	BusinessType  *string `json:"businessType" validate:"omitempty,oneof=individual company agency"`
	ProfileImage  *string `json:"profileImage" validate:"omitempty,max=2048"`
}

type LoginResult struct {
	Account   models.Profile `json:"user"`
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	// TTL drives the cookie lifetime.
	TTL time.Duration `json:"-"`
}
