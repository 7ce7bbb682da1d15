// Package repomanager opens the configured storage backend and vends
// per-kind account repositories bound to it.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/domainx/internal/server/repositories/accounts"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Accounts(kind string) (accounts.Repository, error)
	// WithinTx runs fn with a repository whose statements share one
	// transaction. fn's error rolls everything back.
	WithinTx(ctx context.Context, kind string, fn func(ctx context.Context, repo accounts.Repository) error) error
	Ping(ctx context.Context) error
	Close() error
}
