package auth

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPGUsersCreateAndFind(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGUsers(db)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec("insert into users").
		WithArgs("olga", "hash", "admin,viewer", created).
		WillReturnResult(sqlmock.NewResult(1, 1))
	if err := store.Create(context.Background(), &User{ID: "olga", PasswordHash: "hash", Roles: []string{"admin", "viewer"}, CreatedAt: created}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	if err := store.Create(context.Background(), &User{ID: "olga"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	mock.ExpectQuery("select id, password_hash, roles, created_at from users").
		WithArgs("olga").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash", "roles", "created_at"}).AddRow("olga", "hash", "admin,viewer", created))
	u, err := store.Find(context.Background(), "olga")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if u.PasswordHash != "hash" || !slices.Equal(u.Roles, []string{"admin", "viewer"}) {
		t.Fatalf("unexpected user: %+v", u)
	}

	mock.ExpectQuery("select id, password_hash, roles, created_at from users").
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.Find(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
