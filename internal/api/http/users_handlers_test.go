package http

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	auth "github.com/traincore/traincore-lms/internal/auth/middleware"
	"github.com/traincore/traincore-lms/internal/db"
)

func newUsersDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })
	return dbh
}

func TestChangePasswordHandler(t *testing.T) {
	dbh := newUsersDB(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("old-secret-1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := dbh.Exec(
		`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ('u1','casey',$1,'trainee',0)`,
		string(hash)); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	h := ChangePasswordHandler(dbh)
	call := func(subject, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/users/me/password", strings.NewReader(body))
		req = req.WithContext(auth.WithSubject(req.Context(), subject))
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec
	}

	if rec := call("u1", `{"old_password":"nope","new_password":"fresh-secret-9"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("wrong old password: status=%d, want 403", rec.Code)
	}
	if rec := call("u1", `{"old_password":"old-secret-1","new_password":"short"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("short new password: status=%d, want 400", rec.Code)
	}
	if rec := call("", `{"old_password":"old-secret-1","new_password":"fresh-secret-9"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no subject: status=%d, want 401", rec.Code)
	}
	if rec := call("u1", `{"old_password":"old-secret-1","new_password":"fresh-secret-9"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("change: status=%d body=%s, want 204", rec.Code, rec.Body.String())
	}

	var stored string
	if err := dbh.QueryRow(`SELECT password_hash FROM users WHERE id='u1'`).Scan(&stored); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte("fresh-secret-9")) != nil {
		t.Fatalf("stored hash does not match the new password")
	}
}
