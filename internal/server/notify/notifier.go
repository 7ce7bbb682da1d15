// Package notify renders and delivers account emails.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/domainx/internal/common"
	"github.com/dmitrijs2005/domainx/internal/logging"
	"github.com/dmitrijs2005/domainx/internal/server/models"
)

// Notifier is what the account services need. PasswordReset is synchronous
// because the caller must know whether the email left; the others are
// fire-and-forget.
type Notifier interface {
	PasswordReset(ctx context.Context, acc *models.Account, raw string) error
	PasswordChanged(ctx context.Context, acc *models.Account, when time.Time)
	Welcome(ctx context.Context, acc *models.Account)
}

// EmailNotifier is the Notifier backed by a Renderer and a Dispatcher.
type EmailNotifier struct {
	renderer   *Renderer
	dispatcher *Dispatcher
	log        logging.Logger
}

// NewEmailNotifier renders messages with r and sends them through d.
func NewEmailNotifier(r *Renderer, d *Dispatcher, log logging.Logger) *EmailNotifier {
	return &EmailNotifier{renderer: r, dispatcher: d, log: log.With("module", "notify")}
}

func (n *EmailNotifier) PasswordReset(ctx context.Context, acc *models.Account, raw string) error {
	msg, err := n.renderer.PasswordReset(acc, raw)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrNotificationFailed, err)
	}
	if err := n.dispatcher.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", common.ErrNotificationFailed, err)
	}
	return nil
}

func (n *EmailNotifier) PasswordChanged(ctx context.Context, acc *models.Account, when time.Time) {
	msg, err := n.renderer.PasswordChanged(acc, when)
	if err != nil {
		n.log.Error(ctx, "error rendering email", "template", TemplatePasswordChanged, "error", err)
		return
	}
	n.dispatcher.Dispatch(msg)
}

func (n *EmailNotifier) Welcome(ctx context.Context, acc *models.Account) {
	msg, err := n.renderer.Welcome(acc)
	if err != nil {
		n.log.Error(ctx, "error rendering email", "template", TemplateWelcome, "error", err)
		return
	}
	n.dispatcher.Dispatch(msg)
}
