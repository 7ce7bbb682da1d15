package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/domainx/internal/dbx"
	"github.com/dmitrijs2005/domainx/internal/server/migrations"
	"github.com/dmitrijs2005/domainx/internal/server/repositories/accounts"
)

// SQLRepositoryManager serves PostgreSQL (pgx) and SQLite (modernc) handles.
type SQLRepositoryManager struct {
	db      *sqlx.DB
	dialect string
	dir     string
}

func NewSQLRepositoryManager(db *sqlx.DB) (*SQLRepositoryManager, error) {
	switch db.DriverName() {
	case driverPostgres:
		return &SQLRepositoryManager{db: db, dialect: "postgres", dir: migrations.PostgresDir}, nil
	case driverSQLite:
		return &SQLRepositoryManager{db: db, dialect: "sqlite3", dir: migrations.SQLiteDir}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", db.DriverName())
	}
}

// Accounts returns the repository for kind bound to the shared handle.
func (m *SQLRepositoryManager) Accounts(kind string) (accounts.Repository, error) {
	return accounts.NewSQLRepository(m.db, kind)
}

func (m *SQLRepositoryManager) WithinTx(ctx context.Context, kind string, fn func(ctx context.Context, repo accounts.Repository) error) error {
	return dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo, err := accounts.NewSQLRepository(tx, kind)
		if err != nil {
			return err
		}
		return fn(ctx, repo)
	})
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations for the handle's dialect.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(m.dialect); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, m.db.DB, m.dir); err != nil {
		return err
	}
	return nil
}

func (m *SQLRepositoryManager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *SQLRepositoryManager) Close() error {
	return m.db.Close()
}
