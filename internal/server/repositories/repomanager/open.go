package repomanager

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	_ "github.com/dmitrijs2005/domainx/internal/dbx"
)

const (
	driverPostgres = "pgx"
	driverSQLite   = "sqlite"

	schemeMemory = "memory://"
	schemeSQLite = "sqlite://"
)

// sqlOpen is a seam for tests.
var sqlOpen = sqlx.Open

// Open picks a backend from the DSN:
//
//	memory://                 in-process maps, lost on exit
//	sqlite://path/to/file.db  SQLite through modernc.org/sqlite
//	postgres://...            PostgreSQL through pgx
//
// SQL handles are pinged before returning.
func Open(ctx context.Context, dsn string) (RepositoryManager, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty database DSN")
	}

	if strings.HasPrefix(dsn, schemeMemory) {
		return NewMemoryRepositoryManager(), nil
	}

	driver, source := driverPostgres, dsn
	if strings.HasPrefix(dsn, schemeSQLite) {
		driver, source = driverSQLite, sqliteSource(strings.TrimPrefix(dsn, schemeSQLite))
	}

	db, err := sqlOpen(driver, source)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if driver == driverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	m, err := NewSQLRepositoryManager(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func sqliteSource(path string) string {
	if path == "" || path == ":memory:" {
		return "file::memory:?cache=shared"
	}
	if strings.Contains(path, "?") {
		return "file:" + path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
