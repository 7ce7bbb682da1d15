package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/domainx/internal/common"
	"github.com/dmitrijs2005/domainx/internal/server/models"
)

// ErrNotAdminService is returned when BootstrapAdmin is called on a buyer or
// reseller service.
var ErrNotAdminService = errors.New("bootstrap requires the admin service")

// BootstrapAdmin creates a verified super admin. It is the only way to
// obtain that role and is reachable from the operator CLI, never over HTTP.
func (s *AccountService) BootstrapAdmin(ctx context.Context, in RegisterInput) (models.Profile, error) {
	if s.policy.Kind != common.KindAdmin {
		return models.Profile{}, ErrNotAdminService
	}
	in.Role = ""
	return s.register(ctx, in, models.RoleSuperAdmin)
}
