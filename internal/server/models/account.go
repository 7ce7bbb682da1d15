package models

import (
	"time"

	"github.com/dmitrijs2005/domainx/internal/common"
)

// Account is one authenticated principal. Buyers, resellers and admins share
// the same shape and live in separate tables, so an email is unique per kind.
type Account struct {
	ID             string     `db:"id"`
	Kind           string     `db:"-"`
	Email          string     `db:"email"`
	PasswordDigest string     `db:"password_digest"`
	Name           string     `db:"name"`
	Username       *string    `db:"username"`
	Phone          string     `db:"phone"`
	Company        string     `db:"company"`
	BusinessID     string     `db:"business_id"`
	PortfolioLink  string     `db:"portfolio_link"`
	BusinessType   string     `db:"business_type"`
	ProfileImage   string     `db:"profile_image"`
	AdminRole      string     `db:"admin_role"`
	IsActive       bool       `db:"is_active"`
	IsApproved     bool       `db:"is_approved"`
	IsVerified     bool       `db:"is_verified"`
	LoginAttempts  int        `db:"login_attempts"`
	LockUntil      *time.Time `db:"lock_until"`
	ResetTokenHash *string    `db:"reset_token_hash"`
	ResetExpires   *time.Time `db:"reset_expires"`
	LastLogin      *time.Time `db:"last_login"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

const (
	BusinessIndividual = "individual"
	BusinessCompany    = "company"
	BusinessAgency     = "agency"

	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Profile is the public projection of an Account. Credential and throttle
// fields are deliberately absent.
type Profile struct {
	ID            string     `json:"id"`
	UserType      string     `json:"userType"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	Username      string     `json:"username,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Company       string     `json:"company,omitempty"`
	BusinessID    string     `json:"businessId,omitempty"`
	PortfolioLink string     `json:"portfolioLink,omitempty"`
	BusinessType  string     `json:"businessType,omitempty"`
	ProfileImage  string     `json:"profileImage,omitempty"`
	Role          string     `json:"role,omitempty"`
	IsActive      bool       `json:"isActive"`
	IsApproved    bool       `json:"isApproved"`
	IsVerified    bool       `json:"isVerified"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// PublicView strips secrets from the account. Fields that only make sense
// for one kind are dropped for the others.
func (a *Account) PublicView() Profile {
	p := Profile{
		ID:           a.ID,
		UserType:     a.Kind,
		Email:        a.Email,
		Name:         a.Name,
		Phone:        a.Phone,
		ProfileImage: a.ProfileImage,
		IsActive:     a.IsActive,
		IsApproved:   a.IsApproved,
		IsVerified:   a.IsVerified,
		LastLogin:    a.LastLogin,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
	if a.Username != nil {
		p.Username = *a.Username
	}
	switch a.Kind {
	case common.KindBuyer, common.KindReseller:
		p.Company = a.Company
		p.BusinessID = a.BusinessID
		p.PortfolioLink = a.PortfolioLink
		if a.Kind == common.KindReseller {
			p.BusinessType = a.BusinessType
		}
	case common.KindAdmin:
		p.Role = a.AdminRole
	}
	return p
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (a *Account) Clone() *Account {
	c := *a
	c.Username = cloneString(a.Username)
	c.ResetTokenHash = cloneString(a.ResetTokenHash)
	c.LockUntil = cloneTime(a.LockUntil)
	c.ResetExpires = cloneTime(a.ResetExpires)
	c.LastLogin = cloneTime(a.LastLogin)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
