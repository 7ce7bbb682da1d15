package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dmitrijs2005/domainx/internal/common"
	"github.com/dmitrijs2005/domainx/internal/dbx"
	"github.com/dmitrijs2005/domainx/internal/server/models"
	"github.com/dmitrijs2005/domainx/internal/server/throttle"
)

const columns = `id, email, password_digest, name, username, phone, company, business_id,
 portfolio_link, business_type, profile_image, admin_role, is_active, is_approved, is_verified,
 login_attempts, lock_until, reset_token_hash, reset_expires, last_login, created_at, updated_at`

// SQLRepository stores accounts in PostgreSQL or SQLite. Queries are written
// with '?' placeholders and rebound for the driver.
type SQLRepository struct {
	db    dbx.DBTX
	kind  string
	table string
	// tsParam is the placeholder for a timestamp in a position where
	// PostgreSQL cannot infer the parameter type.
	tsParam string
}

// NewSQLRepository returns the repository for kind's table on db.
func NewSQLRepository(db dbx.DBTX, kind string) (*SQLRepository, error) {
	table, ok := Tables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown account kind %q", kind)
	}

	ts := "?"
	if db.DriverName() != "sqlite" {
		ts = "CAST(? AS TIMESTAMPTZ)"
	}

	return &SQLRepository{db: db, kind: kind, table: table, tsParam: ts}, nil
}

func (r *SQLRepository) Kind() string {
	return r.kind
}

func (r *SQLRepository) q(format string, args ...any) string {
	return r.db.Rebind(fmt.Sprintf(format, args...))
}

func (r *SQLRepository) get(ctx context.Context, query string, args ...any) (*models.Account, error) {
	acc := &models.Account{}
	if err := r.db.GetContext(ctx, acc, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	acc.Kind = r.kind
	normalizeTimes(acc)
	return acc, nil
}

func (r *SQLRepository) Create(ctx context.Context, acc *models.Account) (*models.Account, error) {
	query := r.q(`INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, r.table, columns)

	_, err := r.db.ExecContext(ctx, query,
		acc.ID, acc.Email, acc.PasswordDigest, acc.Name, acc.Username, acc.Phone, acc.Company, acc.BusinessID,
		acc.PortfolioLink, acc.BusinessType, acc.ProfileImage, acc.AdminRole, acc.IsActive, acc.IsApproved, acc.IsVerified,
		acc.LoginAttempts, acc.LockUntil, acc.ResetTokenHash, acc.ResetExpires, acc.LastLogin, acc.CreatedAt, acc.UpdatedAt)
	if err != nil {
		if field, ok := uniqueViolation(err); ok {
			return nil, &common.UniqueViolation{Field: field}
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	acc.Kind = r.kind
	return acc, nil
}

func (r *SQLRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.get(ctx, r.q(`SELECT %s FROM %s WHERE id = ?`, columns, r.table), id)
}

func (r *SQLRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.get(ctx, r.q(`SELECT %s FROM %s WHERE email = ?`, columns, r.table), email)
}

func (r *SQLRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.get(ctx, r.q(`SELECT %s FROM %s WHERE username = ?`, columns, r.table), username)
}

func (r *SQLRepository) GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (*models.Account, error) {
	return r.get(ctx, r.q(`SELECT %s FROM %s WHERE reset_token_hash = ? AND reset_expires > ?`, columns, r.table), hash, now)
}

func (r *SQLRepository) UpdateProfile(ctx context.Context, acc *models.Account) error {
	query := r.q(`UPDATE %s SET email = ?, name = ?, username = ?, phone = ?, company = ?, business_id = ?,
		portfolio_link = ?, business_type = ?, profile_image = ?, updated_at = ?
		WHERE id = ?`, r.table)

	res, err := r.db.ExecContext(ctx, query,
		acc.Email, acc.Name, acc.Username, acc.Phone, acc.Company, acc.BusinessID,
		acc.PortfolioLink, acc.BusinessType, acc.ProfileImage, acc.UpdatedAt, acc.ID)
	if err != nil {
		if field, ok := uniqueViolation(err); ok {
			return &common.UniqueViolation{Field: field}
		}
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *SQLRepository) UpdatePassword(ctx context.Context, id, digest string, now time.Time) error {
	query := r.q(`UPDATE %s SET password_digest = ?, updated_at = ? WHERE id = ?`, r.table)

	res, err := r.db.ExecContext(ctx, query, digest, now, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *SQLRepository) RecordFailedLogin(ctx context.Context, id string, p throttle.Policy, now time.Time) (int, bool, error) {
	query := r.q(`UPDATE %s SET
		login_attempts = CASE WHEN lock_until IS NOT NULL THEN 1 ELSE login_attempts + 1 END,
		lock_until = CASE WHEN (CASE WHEN lock_until IS NOT NULL THEN 1 ELSE login_attempts + 1 END) >= ? THEN %s ELSE NULL END,
		updated_at = ?
		WHERE id = ? AND (lock_until IS NULL OR lock_until <= ?)
		RETURNING login_attempts, lock_until IS NOT NULL`, r.table, r.tsParam)

	var attempts int
	var locked bool
	err := r.db.QueryRowxContext(ctx, query, p.Threshold, now.Add(p.Duration), now, id, now).Scan(&attempts, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.failedLoginMiss(ctx, id)
		}
		return 0, false, fmt.Errorf("db error: %w", err)
	}
	return attempts, locked, nil
}

// failedLoginMiss tells a concurrently locked row apart from a deleted one.
func (r *SQLRepository) failedLoginMiss(ctx context.Context, id string) (int, bool, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, r.q(`SELECT COUNT(*) FROM %s WHERE id = ?`, r.table), id); err != nil {
		return 0, false, fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return 0, false, common.ErrorNotFound
	}
	return 0, true, nil
}

func (r *SQLRepository) SetStatus(ctx context.Context, id string, active, approved bool, now time.Time) error {
	query := r.q(`UPDATE %s SET is_active = ?, is_approved = ?, updated_at = ? WHERE id = ?`, r.table)

	res, err := r.db.ExecContext(ctx, query, active, approved, now, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *SQLRepository) RecordSuccessfulLogin(ctx context.Context, id string, now time.Time) error {
	query := r.q(`UPDATE %s SET login_attempts = 0, lock_until = NULL, last_login = ?, updated_at = ? WHERE id = ?`, r.table)

	res, err := r.db.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *SQLRepository) SetResetToken(ctx context.Context, id, hash string, expires, now time.Time) error {
	query := r.q(`UPDATE %s SET reset_token_hash = ?, reset_expires = ?, updated_at = ? WHERE id = ?`, r.table)

	res, err := r.db.ExecContext(ctx, query, hash, expires, now, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *SQLRepository) ClearResetToken(ctx context.Context, id, hash string, now time.Time) error {
	query := r.q(`UPDATE %s SET reset_token_hash = NULL, reset_expires = NULL, updated_at = ?
		WHERE id = ? AND reset_token_hash = ?`, r.table)

	if _, err := r.db.ExecContext(ctx, query, now, id, hash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) ConsumeResetToken(ctx context.Context, hash, digest string, now time.Time) (*models.Account, error) {
	query := r.q(`UPDATE %s SET password_digest = ?, reset_token_hash = NULL, reset_expires = NULL,
		login_attempts = 0, lock_until = NULL, updated_at = ?
		WHERE reset_token_hash = ? AND reset_expires > ?
		RETURNING id`, r.table)

	var id string
	if err := r.db.QueryRowxContext(ctx, query, digest, now, hash, now).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return r.GetByID(ctx, id)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// uniqueFields are the columns carrying a unique constraint besides id.
var uniqueFields = []string{"username", "email"}

// uniqueViolation reports whether err is a unique constraint failure and,
// when the driver says, on which column. PostgreSQL names the constraint
// <table>_<column>_key; SQLite reports "<table>.<column>" in the message.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != "23505" {
			return "", false
		}
		return columnIn(pgErr.ConstraintName, "_", "_key"), true
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code != sqlite3.SQLITE_CONSTRAINT_UNIQUE && code != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return "", false
		}
		return columnIn(liteErr.Error(), ".", ""), true
	}
	return "", false
}

func columnIn(s, before, after string) string {
	for _, f := range uniqueFields {
		if strings.Contains(s, before+f+after) {
			return f
		}
	}
	return ""
}

// normalizeTimes pins every timestamp to UTC whatever the driver returned.
func normalizeTimes(acc *models.Account) {
	acc.CreatedAt = acc.CreatedAt.UTC()
	acc.UpdatedAt = acc.UpdatedAt.UTC()
	for _, t := range []*time.Time{acc.LockUntil, acc.ResetExpires, acc.LastLogin} {
		if t != nil {
			*t = t.UTC()
		}
	}
}
