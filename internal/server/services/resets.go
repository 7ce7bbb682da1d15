package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/domainx/internal/common"
	"github.com/dmitrijs2005/domainx/internal/logging"
	"github.com/dmitrijs2005/domainx/internal/server/auth"
	"github.com/dmitrijs2005/domainx/internal/server/metrics"
	"github.com/dmitrijs2005/domainx/internal/server/models"
	"github.com/dmitrijs2005/domainx/internal/server/notify"
	"github.com/dmitrijs2005/domainx/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/domainx/internal/timex"
)

// ResetManager owns the reset-token lifecycle of one kind. Only the SHA-256
// of a token is stored; the raw value exists in the email and nowhere else.
type ResetManager struct {
	repo     accounts.Repository
	notifier notify.Notifier
	log      logging.Logger
	metrics  *metrics.Metrics
	now      timex.Clock
}

// Issue stores a fresh token for acc, replacing any previous one, and
// returns the raw value.
func (m *ResetManager) Issue(ctx context.Context, acc *models.Account) (raw, hash string, err error) {
	raw, hash, err = auth.NewResetSecret()
	if err != nil {
		return "", "", fmt.Errorf("error generating reset token: %w", err)
	}

	now := m.now()
	if err := m.repo.SetResetToken(ctx, acc.ID, hash, now.Add(common.ResetTokenTTL), now); err != nil {
		return "", "", fmt.Errorf("error storing reset token: %w", err)
	}
	return raw, hash, nil
}

// IssueAndNotify issues a token and emails it. If the email cannot be sent
// the token is withdrawn so that no usable token exists that nobody received.
func (m *ResetManager) IssueAndNotify(ctx context.Context, acc *models.Account) error {
	raw, hash, err := m.Issue(ctx, acc)
	if err != nil {
		return err
	}

	if err := m.notifier.PasswordReset(ctx, acc, raw); err != nil {
		m.log.Error(ctx, "reset email failed, withdrawing token", "id", acc.ID, "error", err)
		if cerr := m.repo.ClearResetToken(ctx, acc.ID, hash, m.now()); cerr != nil && !errors.Is(cerr, common.ErrorNotFound) {
			m.log.Error(ctx, "error withdrawing reset token", "id", acc.ID, "error", cerr)
		}
		if errors.Is(err, common.ErrNotificationFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", common.ErrNotificationFailed, err)
	}

	m.metrics.ResetIssued(m.repo.Kind())
	m.log.Info(ctx, "reset token issued", "id", acc.ID)
	return nil
}

// Check reports the email of the account a live token belongs to.
func (m *ResetManager) Check(ctx context.Context, raw string) (string, error) {
	acc, err := m.repo.GetByResetTokenHash(ctx, auth.HashResetSecret(raw), m.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrInvalidResetToken
		}
		return "", fmt.Errorf("error checking reset token: %w", err)
	}
	return acc.Email, nil
}

// Consume atomically swaps a live token for the new password digest. Of
// concurrent callers with the same token exactly one succeeds. Success also
// clears the throttle state.
func (m *ResetManager) Consume(ctx context.Context, raw, digest string) (*models.Account, error) {
	if raw == "" {
		return nil, common.ErrInvalidResetToken
	}

	acc, err := m.repo.ConsumeResetToken(ctx, auth.HashResetSecret(raw), digest, m.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidResetToken
		}
		return nil, fmt.Errorf("error consuming reset token: %w", err)
	}

	m.metrics.ResetCompleted(m.repo.Kind())
	m.log.Info(ctx, "password reset", "id", acc.ID)
	return acc, nil
}
