// Package accounts is the credential store. Each account kind has its own
// table, so every Repository is bound to exactly one kind.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/domainx/internal/common"
	"github.com/dmitrijs2005/domainx/internal/server/models"
	"github.com/dmitrijs2005/domainx/internal/server/throttle"
)

// Repository persists accounts of a single kind. Lookups of missing rows
// return common.ErrorNotFound; unique collisions return a *common.UniqueViolation,
// which matches common.ErrAlreadyExists.
type Repository interface {
	Kind() string

	Create(ctx context.Context, acc *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)

	// GetByResetTokenHash finds the account holding hash as a reset token
	// that is still valid at now.
	GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (*models.Account, error)

	UpdateProfile(ctx context.Context, acc *models.Account) error
	UpdatePassword(ctx context.Context, id, digest string, now time.Time) error
	// SetStatus is the operator switch for activation and approval.
	SetStatus(ctx context.Context, id string, active, approved bool, now time.Time) error

	// RecordFailedLogin applies one throttle failure atomically. When the
	// account is already locked nothing changes and locked is true with
	// attempts zero.
	RecordFailedLogin(ctx context.Context, id string, p throttle.Policy, now time.Time) (attempts int, locked bool, err error)
	RecordSuccessfulLogin(ctx context.Context, id string, now time.Time) error

	// SetResetToken overwrites any earlier reset token.
	SetResetToken(ctx context.Context, id, hash string, expires, now time.Time) error
	// ClearResetToken removes the reset token only if it is still hash.
	ClearResetToken(ctx context.Context, id, hash string, now time.Time) error
	// ConsumeResetToken atomically matches a live token, stores the new
	// digest and clears both the reset and the throttle fields.
	ConsumeResetToken(ctx context.Context, hash, digest string, now time.Time) (*models.Account, error)
}

// Tables maps account kinds to their table names.
var Tables = map[string]string{
	common.KindBuyer:    "buyers",
	common.KindReseller: "resellers",
	common.KindAdmin:    "admins",
}
