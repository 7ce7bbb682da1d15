package accounts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/dmitrijs2005/domainx/internal/common"
	"github.com/dmitrijs2005/domainx/internal/server/models"
	"github.com/dmitrijs2005/domainx/internal/server/throttle"
)

var ts = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func newRepoWithMock(t *testing.T, kind string) (*SQLRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	repo, err := NewSQLRepository(sqlx.NewDb(db, "pgx"), kind)
	if err != nil {
		t.Fatalf("NewSQLRepository error: %v", err)
	}
	return repo, mock, db
}

var accountColumns = []string{"id", "email", "password_digest", "name", "username", "phone", "company", "business_id",
	"portfolio_link", "business_type", "profile_image", "admin_role", "is_active", "is_approved", "is_verified",
	"login_attempts", "lock_until", "reset_token_hash", "reset_expires", "last_login", "created_at", "updated_at"}

func accountRows(id, email string) *sqlmock.Rows {
	return sqlmock.NewRows(accountColumns).AddRow(
		id, email, "$2a$12$digest", "Alice", nil, "", "", "",
		"", "", "", "", true, true, false,
		2, nil, nil, nil, nil, ts, ts)
}

func TestNewSQLRepository_UnknownKind(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	if _, err := NewSQLRepository(sqlx.NewDb(db, "pgx"), "guest"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, common.KindReseller)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+resellers\s*\(id,\s*email,.*updated_at\)\s*VALUES\s*\(\$1,.*\$22\)$`
	mock.ExpectExec(q).WillReturnResult(sqlmock.NewResult(0, 1))

	acc := &models.Account{ID: "r1", Email: "r@x.io", PasswordDigest: "d", CreatedAt: ts, UpdatedAt: ts}
	got, err := repo.Create(context.Background(), acc)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.Kind != common.KindReseller {
		t.Fatalf("kind not set: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, common.KindBuyer)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+buyers`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "buyers_email_key"})

	_, err := repo.Create(context.Background(), &models.Account{ID: "b1", Email: "dup@x.io"})
	if !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("want common.ErrAlreadyExists, got %v", err)
	}
	var uv *common.UniqueViolation
	if !errors.As(err, &uv) || uv.Field != "email" {
		t.Fatalf("want email violation, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, common.KindBuyer)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+buyers`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.Account{ID: "b1"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByEmail_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, common.KindAdmin)
	defer db.Close()

	q := `(?s)^SELECT\s+id,\s*email,.*updated_at\s+FROM\s+admins\s+WHERE\s+email\s*=\s*\$1$`
	mock.ExpectQuery(q).WithArgs("a@x.io").WillReturnRows(accountRows("a1", "a@x.io"))

	got, err := repo.GetByEmail(context.Background(), "a@x.io")
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	if got.ID != "a1" || got.Kind != common.KindAdmin || got.LoginAttempts != 2 || got.Username != nil {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, common.KindBuyer)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.+FROM\s+buyers\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetByResetTokenHash_FiltersExpiry(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, common.KindBuyer)
	defer db.Close()

	q := `(?s)^SELECT.+FROM\s+buyers\s+WHERE\s+reset_token_hash\s*=\s*\$1\s+AND\s+reset_expires\s*>\s*\$2$`
	mock.ExpectQuery(q).WithArgs("h", ts).WillReturnRows(accountRows("b1", "b@x.io"))

	if _, err := repo.GetByResetTokenHash(context.Background(), "h", ts); err != nil {
		t.Fatalf("GetByResetTokenHash error: %v", err)
	}
}

func TestRecordFailedLogin_Applied(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, common.KindBuyer)
	defer db.Close()

	p := throttle.DefaultPolicy()
	q := `(?s)^UPDATE\s+buyers\s+SET.+login_attempts.+>=\s*\$1\s+THEN\s+CAST\(\$2\s+AS\s+TIMESTAMPTZ\).+WHERE\s+id\s*=\s*\$4\s+AND\s+\(lock_until\s+IS\s+NULL\s+OR\s+lock_until\s*<=\s*\$5\).+RETURNING\s+login_attempts,\s*lock_until\s+IS\s+NOT\s+NULL$`
	mock.ExpectQuery(q).
		WithArgs(5, ts.Add(2*time.Hour), ts, "b1", ts).
		WillReturnRows(sqlmock.NewRows([]string{"login_attempts", "locked"}).AddRow(5, true))

	attempts, locked, err := repo.RecordFailedLogin(context.Background(), "b1", p, ts)
	if err != nil {
		t.Fatalf("RecordFailedLogin error: %v", err)
	}
	if attempts != 5 || !locked {
		t.Fatalf("got attempts=%d locked=%v", attempts, locked)
	}
}

func TestRecordFailedLogin_AlreadyLocked(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, common.KindBuyer)
	defer db.Close()

	mock.ExpectQuery(`(?s)^UPDATE\s+buyers`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`(?s)^SELECT\s+COUNT\(\*\)\s+FROM\s+buyers\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	attempts, locked, err := repo.RecordFailedLogin(context.Background(), "b1", throttle.DefaultPolicy(), ts)
	if err != nil {
		t.Fatalf("RecordFailedLogin error: %v", err)
	}
	if attempts != 0 || !locked {
		t.Fatalf("got attempts=%d locked=%v", attempts, locked)
	}
}

func TestRecordFailedLogin_Missing(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, common.KindBuyer)
	defer db.Close()

	mock.ExpectQuery(`(?s)^UPDATE\s+buyers`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`(?s)^SELECT\s+COUNT`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err := repo.RecordFailedLogin(context.Background(), "b1", throttle.DefaultPolicy(), ts)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestRecordSuccessfulLogin_NoRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, common.KindBuyer)
	defer db.Close()

	q := `(?s)^UPDATE\s+buyers\s+SET\s+login_attempts\s*=\s*0,\s*lock_until\s*=\s*NULL,\s*last_login\s*=\s*\$1,\s*updated_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$3$`
	mock.ExpectExec(q).WithArgs(ts, ts, "b1").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RecordSuccessfulLogin(context.Background(), "b1", ts)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestSetAndClearResetToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, common.KindBuyer)
	defer db.Close()

	exp := ts.Add(time.Hour)
	mock.ExpectExec(`(?s)^UPDATE\s+buyers\s+SET\s+reset_token_hash\s*=\s*\$1,\s*reset_expires\s*=\s*\$2,\s*updated_at\s*=\s*\$3\s+WHERE\s+id\s*=\s*\$4$`).
		WithArgs("h", exp, ts, "b1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)^UPDATE\s+buyers\s+SET\s+reset_token_hash\s*=\s*NULL,\s*reset_expires\s*=\s*NULL.+WHERE\s+id\s*=\s*\$2\s+AND\s+reset_token_hash\s*=\s*\$3$`).
		WithArgs(ts, "b1", "h").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetResetToken(context.Background(), "b1", "h", exp, ts); err != nil {
		t.Fatalf("SetResetToken error: %v", err)
	}
	if err := repo.ClearResetToken(context.Background(), "b1", "h", ts); err != nil {
		t.Fatalf("ClearResetToken error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConsumeResetToken_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, common.KindReseller)
	defer db.Close()

	q := `(?s)^UPDATE\s+resellers\s+SET\s+password_digest\s*=\s*\$1,\s*reset_token_hash\s*=\s*NULL.+login_attempts\s*=\s*0,\s*lock_until\s*=\s*NULL.+WHERE\s+reset_token_hash\s*=\s*\$3\s+AND\s+reset_expires\s*>\s*\$4\s+RETURNING\s+id$`
	mock.ExpectQuery(q).
		WithArgs("newdigest", ts, "h", ts).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("r1"))
	mock.ExpectQuery(`(?s)^SELECT.+FROM\s+resellers\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("r1").
		WillReturnRows(accountRows("r1", "r@x.io"))

	got, err := repo.ConsumeResetToken(context.Background(), "h", "newdigest", ts)
	if err != nil {
		t.Fatalf("ConsumeResetToken error: %v", err)
	}
	if got.ID != "r1" {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestConsumeResetToken_Invalid(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, common.KindReseller)
	defer db.Close()

	mock.ExpectQuery(`(?s)^UPDATE\s+resellers`).WillReturnError(sql.ErrNoRows)

	_, err := repo.ConsumeResetToken(context.Background(), "h", "d", ts)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestUpdateProfile_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, common.KindBuyer)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+buyers\s+SET\s+email\s*=\s*\$1,.+WHERE\s+id\s*=\s*\$11$`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "buyers_username_key"})

	err := repo.UpdateProfile(context.Background(), &models.Account{ID: "b1", Email: "b@x.io", Username: strPtr("taken")})
	if !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("want common.ErrAlreadyExists, got %v", err)
	}
	var uv *common.UniqueViolation
	if !errors.As(err, &uv) || uv.Field != "username" {
		t.Fatalf("want username violation, got %v", err)
	}
}

func TestUniqueViolation_UnnamedConstraint(t *testing.T) {
	field, ok := uniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "buyers_pkey"})
	if !ok || field != "" {
		t.Fatalf("got %q, %v", field, ok)
	}
	if _, ok := uniqueViolation(&pgconn.PgError{Code: "23503"}); ok {
		t.Fatal("foreign key failure reported as unique")
	}
}

func TestUpdatePassword_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, common.KindAdmin)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+admins\s+SET\s+password_digest\s*=\s*\$1,\s*updated_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$3$`).
		WithArgs("d", ts, "a1").
		WillReturnError(errors.New("db err"))

	err := repo.UpdatePassword(context.Background(), "a1", "d", ts)
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, common.KindReseller)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+resellers\s+SET\s+is_active\s*=\s*\$1,\s*is_approved\s*=\s*\$2,\s*updated_at\s*=\s*\$3\s+WHERE\s+id\s*=\s*\$4$`).
		WithArgs(true, true, ts, "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)^UPDATE\s+resellers\s+SET\s+is_active`).
		WithArgs(false, true, ts, "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetStatus(context.Background(), "r1", true, true, ts); err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}
	if err := repo.SetStatus(context.Background(), "gone", false, true, ts); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
