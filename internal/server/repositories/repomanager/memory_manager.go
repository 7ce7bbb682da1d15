package repomanager

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/domainx/internal/server/repositories/accounts"
)

// MemoryRepositoryManager keeps one in-memory repository per kind for the
// lifetime of the process.
type MemoryRepositoryManager struct {
	repos map[string]*accounts.MemoryRepository
	txMu  sync.Mutex
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	repos := make(map[string]*accounts.MemoryRepository, len(accounts.Tables))
	for kind := range accounts.Tables {
		repos[kind] = accounts.NewMemoryRepository(kind)
	}
	return &MemoryRepositoryManager{repos: repos}
}

func (m *MemoryRepositoryManager) Accounts(kind string) (accounts.Repository, error) {
	r, ok := m.repos[kind]
	if !ok {
		return nil, fmt.Errorf("unknown account kind %q", kind)
	}
	return r, nil
}

// WithinTx serializes callers. There is no rollback: each repository call
// already applies atomically.
func (m *MemoryRepositoryManager) WithinTx(ctx context.Context, kind string, fn func(ctx context.Context, repo accounts.Repository) error) error {
	repo, err := m.Accounts(kind)
	if err != nil {
		return err
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, repo)
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error {
	return nil
}

func (m *MemoryRepositoryManager) Ping(context.Context) error {
	return nil
}

func (m *MemoryRepositoryManager) Close() error {
	return nil
}
