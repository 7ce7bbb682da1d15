// Package services implements the account session façade shared by buyers,
// resellers and admins, and the reset-token lifecycle behind it.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/domainx/internal/common"
	"github.com/dmitrijs2005/domainx/internal/logging"
	"github.com/dmitrijs2005/domainx/internal/server/auth"
	"github.com/dmitrijs2005/domainx/internal/server/metrics"
	"github.com/dmitrijs2005/domainx/internal/server/models"
	"github.com/dmitrijs2005/domainx/internal/server/notify"
	"github.com/dmitrijs2005/domainx/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/domainx/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/domainx/internal/server/throttle"
	"github.com/dmitrijs2005/domainx/internal/timex"
)

// Settings are the tunables shared by every kind.
type Settings struct {
	TokenTTL          time.Duration
	RememberMeTTL     time.Duration
	MinPasswordLength int
	Throttle          throttle.Policy
}

// Option customises an AccountService.
type Option func(*AccountService)

// WithClock replaces the wall clock. Tests use it to step over lock and
// reset-token expiry.
func WithClock(now timex.Clock) Option {
	return func(s *AccountService) { s.now = now }
}

// WithMetrics records registrations and logins on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *AccountService) { s.metrics = m }
}

// AccountService is the façade for one account kind.
type AccountService struct {
	policy   Policy
	settings Settings

	rm       repomanager.RepositoryManager
	repo     accounts.Repository
	hasher   *auth.PasswordHasher
	tokens   *auth.TokenIssuer
	notifier notify.Notifier
	resets   *ResetManager

	log     logging.Logger
	metrics *metrics.Metrics
	now     timex.Clock
}

// NewAccountService builds the service for policy's kind on rm.
func NewAccountService(
	policy Policy,
	rm repomanager.RepositoryManager,
	settings Settings,
	hasher *auth.PasswordHasher,
	tokens *auth.TokenIssuer,
	notifier notify.Notifier,
	log logging.Logger,
	opts ...Option,
) (*AccountService, error) {
	repo, err := rm.Accounts(policy.Kind)
	if err != nil {
		return nil, err
	}

	s := &AccountService{
		policy:   policy,
		settings: settings,
		rm:       rm,
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		log:      log.With("module", "accounts", "kind", policy.Kind),
		now:      timex.UTCNow,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.resets = &ResetManager{
		repo:     repo,
		notifier: notifier,
		log:      s.log,
		metrics:  s.metrics,
		now:      s.now,
	}
	return s, nil
}

func (s *AccountService) Policy() Policy {
	return s.policy
}

// Resets exposes the reset-token manager, mostly for tests.
func (s *AccountService) Resets() *ResetManager {
	return s.resets
}

func (s *AccountService) checkPassword(field, pw string) []common.FieldError {
	return passwordErrors(field, pw, s.settings.MinPasswordLength, s.policy.StrongPasswords)
}

// Register creates an account and sends a best-effort welcome email.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (models.Profile, error) {
	if in.Role == models.RoleSuperAdmin {
		return models.Profile{}, common.NewValidationError("role", "oneof", models.RoleAdmin)
	}
	return s.register(ctx, in, models.RoleAdmin)
}

func (s *AccountService) register(ctx context.Context, in RegisterInput, adminRole string) (models.Profile, error) {
	if err := asValidationError(fieldErrors(in), s.checkPassword("password", in.Password)); err != nil {
		return models.Profile{}, err
	}
	in.Email = normalizeEmail(in.Email)

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return models.Profile{}, common.ErrAlreadyExists
	} else if !errors.Is(err, common.ErrorNotFound) {
		return models.Profile{}, fmt.Errorf("error searching account: %w", err)
	}

	var username *string
	if in.Username != "" {
		if _, err := s.repo.GetByUsername(ctx, in.Username); err == nil {
			return models.Profile{}, common.NewValidationError("username", "unique", "")
		} else if !errors.Is(err, common.ErrorNotFound) {
			return models.Profile{}, fmt.Errorf("error searching account: %w", err)
		}
		username = &in.Username
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return models.Profile{}, err
	}

	now := s.now()
	acc := &models.Account{
		ID:             models.NewID(),
		Kind:           s.policy.Kind,
		Email:          in.Email,
		PasswordDigest: digest,
		Name:           in.Name,
		Username:       username,
		Phone:          in.Phone,
		IsActive:       true,
		IsApproved:     !s.policy.RequiresApproval,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	switch s.policy.Kind {
	case common.KindBuyer, common.KindReseller:
		acc.Company = in.Company
		acc.BusinessID = in.BusinessID
		acc.PortfolioLink = in.PortfolioLink
		if s.policy.Kind == common.KindReseller {
			acc.BusinessType = in.BusinessType
			if acc.BusinessType == "" {
				acc.BusinessType = models.BusinessIndividual
			}
		}
	case common.KindAdmin:
		acc.AdminRole = adminRole
		acc.IsVerified = adminRole == models.RoleSuperAdmin
	}

	if _, err := s.repo.Create(ctx, acc); err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			if conflictField(err, "") == "username" {
				return models.Profile{}, common.NewValidationError("username", "unique", "")
			}
			return models.Profile{}, common.ErrAlreadyExists
		}
		return models.Profile{}, fmt.Errorf("error creating account: %w", err)
	}

	s.metrics.Registered(s.policy.Kind)
	s.log.Info(ctx, "account registered", "id", acc.ID, "approved", acc.IsApproved)
	s.notifier.Welcome(ctx, acc)

	return acc.PublicView(), nil
}

// Login authenticates by email and password. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	in.Email = normalizeEmail(in.Email)

	acc, err := s.repo.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.VerifyDummy(in.Password)
			s.metrics.LoginFailed(s.policy.Kind, "unknown_email")
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("error searching account: %w", err)
	}

	if !acc.IsActive {
		s.metrics.LoginFailed(s.policy.Kind, "deactivated")
		return nil, common.ErrAccountDeactivated
	}
	if s.policy.RequiresApproval && !acc.IsApproved {
		s.metrics.LoginFailed(s.policy.Kind, "pending_approval")
		return nil, common.ErrAccountPendingApproval
	}

	now := s.now()
	if s.settings.Throttle.IsLocked(throttle.State{Attempts: acc.LoginAttempts, LockUntil: acc.LockUntil}, now) {
		s.metrics.LoginFailed(s.policy.Kind, "locked")
		return nil, common.ErrAccountLocked
	}

	if !s.hasher.Verify(in.Password, acc.PasswordDigest) {
		attempts, locked, err := s.repo.RecordFailedLogin(ctx, acc.ID, s.settings.Throttle, now)
		if err != nil {
			return nil, fmt.Errorf("error recording failed login: %w", err)
		}
		s.metrics.LoginFailed(s.policy.Kind, "bad_password")
		if locked && attempts > 0 {
			s.metrics.Locked(s.policy.Kind)
			s.log.Warn(ctx, "account locked", "id", acc.ID, "attempts", attempts)
		}
		return nil, common.ErrInvalidCredentials
	}

	if err := s.repo.RecordSuccessfulLogin(ctx, acc.ID, now); err != nil {
		return nil, fmt.Errorf("error recording login: %w", err)
	}
	acc.LoginAttempts = 0
	acc.LockUntil = nil
	acc.LastLogin = &now

	ttl := s.settings.TokenTTL
	if in.RememberMe {
		ttl = s.settings.RememberMeTTL
	}
	token, err := s.tokens.Issue(acc.ID, s.policy.Kind, ttl)
	if err != nil {
		return nil, fmt.Errorf("error issuing token: %w", err)
	}

	s.metrics.LoggedIn(s.policy.Kind)
	s.log.Debug(ctx, "login succeeded", "id", acc.ID, "remember", in.RememberMe)

	return &LoginResult{
		Account:   acc.PublicView(),
		Token:     token,
		ExpiresAt: now.Add(ttl),
		TTL:       ttl,
	}, nil
}

// Authenticate resolves a session token to a live account of this kind.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*models.Account, error) {
	id, err := s.tokens.Verify(token)
	if err != nil {
		return nil, common.ErrInvalidToken
	}
	if id.Kind != s.policy.Kind {
		return nil, common.ErrInvalidToken
	}

	acc, err := s.repo.GetByID(ctx, id.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("error loading account: %w", err)
	}
	if !acc.IsActive {
		return nil, common.ErrAccountDeactivated
	}
	if s.policy.RequiresApproval && !acc.IsApproved {
		return nil, common.ErrAccountPendingApproval
	}
	return acc, nil
}

// GetProfile returns the public view of the account with id.
func (s *AccountService) GetProfile(ctx context.Context, id string) (models.Profile, error) {
	acc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return models.Profile{}, err
		}
		return models.Profile{}, fmt.Errorf("error loading account: %w", err)
	}
	return acc.PublicView(), nil
}

// UpdateProfile merges the present fields. Email and username changes are
// checked for collisions inside one transaction.
func (s *AccountService) UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (models.Profile, error) {
	if err := Validate(in); err != nil {
		return models.Profile{}, err
	}
	if in.Email != nil {
		e := normalizeEmail(*in.Email)
		in.Email = &e
	}
	if in.Username != nil && *in.Username != "" && len(*in.Username) < 3 {
		return models.Profile{}, common.NewValidationError("username", "min", "3")
	}

	var updated *models.Account
	err := s.rm.WithinTx(ctx, s.policy.Kind, func(ctx context.Context, repo accounts.Repository) error {
		acc, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if in.Email != nil && *in.Email != acc.Email {
			if err := unused(ctx, repo.GetByEmail, *in.Email, "email"); err != nil {
				return err
			}
			acc.Email = *in.Email
		}
		if in.Username != nil {
			switch {
			case *in.Username == "":
				acc.Username = nil
			case acc.Username == nil || *acc.Username != *in.Username:
				if err := unused(ctx, repo.GetByUsername, *in.Username, "username"); err != nil {
					return err
				}
				u := *in.Username
				acc.Username = &u
			}
		}

		s.merge(acc, in)
		acc.UpdatedAt = s.now()

		if err := repo.UpdateProfile(ctx, acc); err != nil {
			return err
		}
		updated = acc
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrValidation):
			return models.Profile{}, err
		case errors.Is(err, common.ErrAlreadyExists):
			return models.Profile{}, common.NewValidationError(conflictField(err, "email"), "unique", "")
		}
		return models.Profile{}, fmt.Errorf("error updating profile: %w", err)
	}
	return updated.PublicView(), nil
}

func (s *AccountService) merge(acc *models.Account, in ProfileUpdate) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}

	if in.Name != nil && *in.Name != "" {
		acc.Name = *in.Name
	}
	set(&acc.Phone, in.Phone)
	if in.ProfileImage != nil && *in.ProfileImage != "" {
		acc.ProfileImage = *in.ProfileImage
	}

	if s.policy.Kind == common.KindAdmin {
		return
	}
	set(&acc.Company, in.Company)
	set(&acc.BusinessID, in.BusinessID)
	set(&acc.PortfolioLink, in.PortfolioLink)
	if s.policy.Kind == common.KindReseller && in.BusinessType != nil && *in.BusinessType != "" {
		acc.BusinessType = *in.BusinessType
	}
}

// conflictField names the field a store-level unique violation hit, or def
// when the store did not say.
func conflictField(err error, def string) string {
	var uv *common.UniqueViolation
	if errors.As(err, &uv) && uv.Field != "" {
		return uv.Field
	}
	return def
}

// unused fails with a unique-field validation error when lookup finds a row.
func unused(ctx context.Context, lookup func(context.Context, string) (*models.Account, error), value, field string) error {
	_, err := lookup(ctx, value)
	switch {
	case err == nil:
		return common.NewValidationError(field, "unique", "")
	case errors.Is(err, common.ErrorNotFound):
		return nil
	default:
		return err
	}
}

// ChangePassword re-verifies the current password. Throttle state is left alone.
func (s *AccountService) ChangePassword(ctx context.Context, id string, in ChangePasswordInput) error {
	if err := asValidationError(fieldErrors(in), s.checkPassword("newPassword", in.NewPassword)); err != nil {
		return err
	}

	acc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return fmt.Errorf("error loading account: %w", err)
	}

	if !s.hasher.Verify(in.CurrentPassword, acc.PasswordDigest) {
		return common.ErrIncorrectPassword
	}

	digest, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, id, digest, s.now()); err != nil {
		return fmt.Errorf("error updating password: %w", err)
	}

	s.log.Info(ctx, "password changed", "id", id)
	return nil
}

// ForgotPassword issues and mails a reset token. Unknown, inactive and
// unapproved accounts get the same silent success.
func (s *AccountService) ForgotPassword(ctx context.Context, in ForgotPasswordInput) error {
	if err := Validate(in); err != nil {
		return err
	}
	in.Email = normalizeEmail(in.Email)

	acc, err := s.repo.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return fmt.Errorf("error searching account: %w", err)
	}
	if !acc.IsActive || (s.policy.RequiresApproval && !acc.IsApproved) {
		s.log.Debug(ctx, "reset skipped for blocked account", "id", acc.ID)
		return nil
	}

	return s.resets.IssueAndNotify(ctx, acc)
}

// ResetPassword consumes a reset token and sets the new password.
func (s *AccountService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := asValidationError(fieldErrors(in), s.checkPassword("newPassword", in.NewPassword)); err != nil {
		return err
	}

	digest, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return err
	}

	acc, err := s.resets.Consume(ctx, in.Token, digest)
	if err != nil {
		return err
	}

	s.notifier.PasswordChanged(ctx, acc, s.now())
	return nil
}

// VerifyResetToken returns the email a live reset token belongs to.
func (s *AccountService) VerifyResetToken(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", common.ErrInvalidResetToken
	}
	return s.resets.Check(ctx, raw)
}

// Logout only acknowledges. Tokens are stateless and stay valid until
// they expire; the client discards them.
func (s *AccountService) Logout(ctx context.Context, id string) error {
	s.log.Debug(ctx, "logout", "id", id)
	return nil
}

// SetStatus activates, deactivates or approves the account registered under
// email. It serves operator tooling; there is no HTTP route for it.
func (s *AccountService) SetStatus(ctx context.Context, email string, active, approved bool) (models.Profile, error) {
	acc, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return models.Profile{}, err
		}
		return models.Profile{}, fmt.Errorf("error searching account: %w", err)
	}

	now := s.now()
	if err := s.repo.SetStatus(ctx, acc.ID, active, approved, now); err != nil {
		return models.Profile{}, fmt.Errorf("error updating status: %w", err)
	}
	acc.IsActive, acc.IsApproved, acc.UpdatedAt = active, approved, now

	s.log.Info(ctx, "account status changed", "id", acc.ID, "active", active, "approved", approved)
	return acc.PublicView(), nil
}
