package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/domainx/internal/common"
	"github.com/dmitrijs2005/domainx/internal/server/models"
	"github.com/dmitrijs2005/domainx/internal/server/throttle"
)

// MemoryRepository keeps accounts in process memory. It backs the
// memory:// DSN and the service tests. Every read returns a copy.
type MemoryRepository struct {
	kind string

	mu   sync.Mutex
	byID map[string]*models.Account
}

func NewMemoryRepository(kind string) *MemoryRepository {
	return &MemoryRepository{kind: kind, byID: make(map[string]*models.Account)}
}

func (r *MemoryRepository) Kind() string {
	return r.kind
}

// conflict returns the violation when another account already uses acc's
// email or username, or nil.
func (r *MemoryRepository) conflict(acc *models.Account) error {
	for id, other := range r.byID {
		if id == acc.ID {
			continue
		}
		if other.Email == acc.Email {
			return &common.UniqueViolation{Field: "email"}
		}
		if acc.Username != nil && other.Username != nil && *acc.Username == *other.Username {
			return &common.UniqueViolation{Field: "username"}
		}
	}
	return nil
}

func (r *MemoryRepository) find(match func(*models.Account) bool) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, acc := range r.byID {
		if match(acc) {
			return acc.Clone(), nil
		}
	}
	return nil, common.ErrorNotFound
}

// update runs fn on the stored account under the lock.
func (r *MemoryRepository) update(id string, fn func(*models.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(acc)
	return nil
}

func (r *MemoryRepository) Create(ctx context.Context, acc *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[acc.ID]; ok {
		return nil, &common.UniqueViolation{}
	}
	if err := r.conflict(acc); err != nil {
		return nil, err
	}

	acc.Kind = r.kind
	r.byID[acc.ID] = acc.Clone()
	return acc, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return acc.Clone(), nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.Email == email })
}

func (r *MemoryRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.Username != nil && *a.Username == username })
}

func (r *MemoryRepository) GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return liveResetToken(a, hash, now) })
}

func (r *MemoryRepository) UpdateProfile(ctx context.Context, acc *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[acc.ID]
	if !ok {
		return common.ErrorNotFound
	}
	if err := r.conflict(acc); err != nil {
		return err
	}

	stored.Email = acc.Email
	stored.Name = acc.Name
	stored.Username = acc.Clone().Username
	stored.Phone = acc.Phone
	stored.Company = acc.Company
	stored.BusinessID = acc.BusinessID
	stored.PortfolioLink = acc.PortfolioLink
	stored.BusinessType = acc.BusinessType
	stored.ProfileImage = acc.ProfileImage
	stored.UpdatedAt = acc.UpdatedAt
	return nil
}

func (r *MemoryRepository) UpdatePassword(ctx context.Context, id, digest string, now time.Time) error {
	return r.update(id, func(a *models.Account) {
		a.PasswordDigest = digest
		a.UpdatedAt = now
	})
}

func (r *MemoryRepository) SetStatus(ctx context.Context, id string, active, approved bool, now time.Time) error {
	return r.update(id, func(a *models.Account) {
		a.IsActive = active
		a.IsApproved = approved
		a.UpdatedAt = now
	})
}

func (r *MemoryRepository) RecordFailedLogin(ctx context.Context, id string, p throttle.Policy, now time.Time) (int, bool, error) {
	var attempts int
	var locked bool

	err := r.update(id, func(a *models.Account) {
		next, applied := p.Fail(throttle.State{Attempts: a.LoginAttempts, LockUntil: a.LockUntil}, now)
		if !applied {
			locked = true
			return
		}
		a.LoginAttempts = next.Attempts
		a.LockUntil = next.LockUntil
		a.UpdatedAt = now
		attempts, locked = next.Attempts, next.LockUntil != nil
	})
	return attempts, locked, err
}

func (r *MemoryRepository) RecordSuccessfulLogin(ctx context.Context, id string, now time.Time) error {
	return r.update(id, func(a *models.Account) {
		a.LoginAttempts = 0
		a.LockUntil = nil
		a.LastLogin = &now
		a.UpdatedAt = now
	})
}

func (r *MemoryRepository) SetResetToken(ctx context.Context, id, hash string, expires, now time.Time) error {
	return r.update(id, func(a *models.Account) {
		a.ResetTokenHash = &hash
		a.ResetExpires = &expires
		a.UpdatedAt = now
	})
}

func (r *MemoryRepository) ClearResetToken(ctx context.Context, id, hash string, now time.Time) error {
	err := r.update(id, func(a *models.Account) {
		if a.ResetTokenHash == nil || *a.ResetTokenHash != hash {
			return
		}
		a.ResetTokenHash = nil
		a.ResetExpires = nil
		a.UpdatedAt = now
	})
	if err == common.ErrorNotFound {
		return nil
	}
	return err
}

func (r *MemoryRepository) ConsumeResetToken(ctx context.Context, hash, digest string, now time.Time) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.byID {
		if !liveResetToken(a, hash, now) {
			continue
		}
		a.PasswordDigest = digest
		a.ResetTokenHash = nil
		a.ResetExpires = nil
		a.LoginAttempts = 0
		a.LockUntil = nil
		a.UpdatedAt = now
		return a.Clone(), nil
	}
	return nil, common.ErrorNotFound
}

func liveResetToken(a *models.Account, hash string, now time.Time) bool {
	return a.ResetTokenHash != nil && *a.ResetTokenHash == hash &&
		a.ResetExpires != nil && a.ResetExpires.After(now)
}
