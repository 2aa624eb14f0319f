package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/diewo77/go-tasks/auth"
	"github.com/diewo77/go-tasks/internal/db"
	"github.com/diewo77/go-tasks/internal/logger"
	"github.com/diewo77/go-tasks/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:e2e_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newTestApp(t *testing.T) (*App, *gorm.DB) {
	t.Helper()
	logger.InitWriter(io.Discard, "error", false)
	conn := setupTestDB(t)
	issuer := auth.NewIssuer("e2e-secret", time.Hour)
	return NewApp(conn, NewRouterConfig(conn, issuer, nil, nil)), conn
}

func do(t *testing.T, app http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	app.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

// signup registers username and returns a bearer token for it.
func signup(t *testing.T, app http.Handler, username string) string {
	t.Helper()
	rr := do(t, app, http.MethodPost, "/users", "", map[string]string{
		"username": username, "email": username + "@example.com", "password": "pw-" + username,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup %s: %d %s", username, rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "password") {
		t.Fatalf("signup response leaks the password field: %s", rr.Body.String())
	}
	return login(t, app, username, "pw-"+username)
}

func login(t *testing.T, app http.Handler, username, password string) string {
	t.Helper()
	rr := do(t, app, http.MethodPost, "/auth/token", "", map[string]string{"username": username, "password": password})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", username, rr.Code, rr.Body.String())
	}
	return decode[map[string]any](t, rr)["token"].(string)
}

func TestTaskLifecycle(t *testing.T) {
	app, conn := newTestApp(t)
	u1 := signup(t, app, "u1")
	u2 := signup(t, app, "u2")

	rr := do(t, app, http.MethodPost, "/categories", u1, map[string]string{"name": "C1"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create category: %d %s", rr.Code, rr.Body.String())
	}
	c1 := decode[models.Category](t, rr)
	rr = do(t, app, http.MethodPost, "/priorities", u1, map[string]string{"name": "P1"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create priority: %d %s", rr.Code, rr.Body.String())
	}
	p1 := decode[models.Priority](t, rr)

	rr = do(t, app, http.MethodPost, "/tasks", u1, map[string]any{
		"title": "T1", "status": "new", "category": c1.ID, "priority": p1.ID,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create task: %d %s", rr.Code, rr.Body.String())
	}
	t1 := decode[map[string]any](t, rr)
	if t1["created_by"] == nil || t1["completed"] != false || t1["deleted"] != false {
		t.Fatalf("unexpected task body %v", t1)
	}
	t1ID := uint(t1["id"].(float64))

	rr = do(t, app, http.MethodGet, "/tasks?status=new", u1, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: %d", rr.Code)
	}
	if got := decode[[]models.Task](t, rr); len(got) != 1 {
		t.Fatalf("expected 1 task, got %d", len(got))
	}

	// u2's task is invisible to u1.
	rr = do(t, app, http.MethodPost, "/tasks", u2, map[string]any{"title": "secret"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create u2 task: %d", rr.Code)
	}
	other := decode[models.Task](t, rr)
	if rr := do(t, app, http.MethodGet, "/tasks/"+itoa(other.ID), u1, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's task, got %d", rr.Code)
	}
	if got := decode[[]models.Task](t, do(t, app, http.MethodGet, "/tasks", u1, nil)); len(got) != 1 {
		t.Fatalf("u1 should see only its own task, got %d", len(got))
	}

	// Completing stamps completed_at.
	rr = do(t, app, http.MethodPatch, "/tasks/"+itoa(t1ID), u1, map[string]any{"completed": true, "status": "completed"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rr.Code, rr.Body.String())
	}
	if done := decode[models.Task](t, rr); done.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}

	// Owner delete is a soft delete.
	if rr := do(t, app, http.MethodDelete, "/tasks/"+itoa(t1ID), u1, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, app, http.MethodGet, "/tasks/"+itoa(t1ID), u1, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("deleted task should be gone, got %d", rr.Code)
	}
	var stored models.Task
	if err := conn.Unscoped().First(&stored, t1ID).Error; err != nil {
		t.Fatalf("soft-deleted row should still be stored: %v", err)
	}
	if !stored.DeletedAt.Valid {
		t.Fatal("expected deleted_at to be set")
	}
	if rr := do(t, app, http.MethodGet, "/tasks?include_deleted=true", u1, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("include_deleted for non-admin: expected 403 got %d", rr.Code)
	}
}

func TestAccountEndpoints(t *testing.T) {
	app, _ := newTestApp(t)
	u1 := signup(t, app, "u1")

	rr := do(t, app, http.MethodGet, "/users/me", u1, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me: %d", rr.Code)
	}
	if me := decode[map[string]any](t, rr); me["username"] != "u1" {
		t.Fatalf("unexpected profile %v", me)
	}

	rr = do(t, app, http.MethodPost, "/users/change_password", u1, map[string]string{"old_password": "wrong", "new_password": "next"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("wrong old password: expected 400 got %d", rr.Code)
	}

	rr = do(t, app, http.MethodPost, "/users/change_password", u1, map[string]string{"old_password": "pw-u1", "new_password": "next"})
	if rr.Code != http.StatusOK {
		t.Fatalf("change password: %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, app, http.MethodGet, "/users/me", u1, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("old token should be rejected, got %d", rr.Code)
	}

	fresh := login(t, app, "u1", "next")
	if rr := do(t, app, http.MethodPost, "/users/logout", fresh, nil); rr.Code != http.StatusOK {
		t.Fatalf("logout: %d", rr.Code)
	}
	if rr := do(t, app, http.MethodGet, "/tasks", fresh, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("token should be revoked after logout, got %d", rr.Code)
	}

	again := login(t, app, "u1", "next")
	if rr := do(t, app, http.MethodDelete, "/users/me", again, nil); rr.Code != http.StatusOK {
		t.Fatalf("deactivate: %d", rr.Code)
	}
	rr = do(t, app, http.MethodPost, "/auth/token", "", map[string]string{"username": "u1", "password": "next"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("inactive user login: expected 401 got %d", rr.Code)
	}
}

func TestAdminEndpoints(t *testing.T) {
	app, conn := newTestApp(t)
	u1 := signup(t, app, "u1")
	signup(t, app, "boss")
	if err := conn.Model(&models.User{}).Where("username = ?", "boss").Update("is_admin", true).Error; err != nil {
		t.Fatal(err)
	}
	admin := login(t, app, "boss", "pw-boss")

	if rr := do(t, app, http.MethodGet, "/users", u1, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("non-admin list users: expected 403 got %d", rr.Code)
	}
	rr := do(t, app, http.MethodGet, "/users", admin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin list users: %d", rr.Code)
	}
	users := decode[[]models.User](t, rr)
	if len(users) != 2 {
		t.Fatalf("expected 2 users got %d", len(users))
	}
	var u1ID uint
	for _, u := range users {
		if u.Username == "u1" {
			u1ID = u.ID
		}
	}

	rr = do(t, app, http.MethodPost, "/users/reset_password", u1, map[string]any{"user_id": u1ID, "new_password": "x"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-admin reset: expected 403 got %d", rr.Code)
	}
	rr = do(t, app, http.MethodPost, "/users/reset_password", admin, map[string]any{"user_id": 9999, "new_password": "x"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("reset missing user: expected 404 got %d", rr.Code)
	}
	rr = do(t, app, http.MethodPost, "/users/reset_password", admin, map[string]any{"user_id": u1ID, "new_password": "reset"})
	if rr.Code != http.StatusOK {
		t.Fatalf("reset: %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, app, http.MethodGet, "/users/me", u1, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("reset should revoke tokens, got %d", rr.Code)
	}
	u1 = login(t, app, "u1", "reset")

	rr = do(t, app, http.MethodPost, "/tasks", u1, map[string]any{"title": "mine"})
	task := decode[models.Task](t, rr)
	if rr := do(t, app, http.MethodGet, "/tasks/"+itoa(task.ID), admin, nil); rr.Code != http.StatusOK {
		t.Fatalf("admin should see any task, got %d", rr.Code)
	}
	if rr := do(t, app, http.MethodDelete, "/tasks/"+itoa(task.ID), admin, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("admin delete: %d", rr.Code)
	}
	if got := decode[[]models.Task](t, do(t, app, http.MethodGet, "/tasks?include_deleted=1", admin, nil)); len(got) != 0 {
		t.Fatalf("admin delete should be permanent, got %d rows", len(got))
	}

	rr = do(t, app, http.MethodPatch, "/users/"+itoa(u1ID), admin, map[string]any{"email": "new@example.com"})
	if rr.Code != http.StatusOK {
		t.Fatalf("admin update user: %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, app, http.MethodDelete, "/users/"+itoa(u1ID), admin, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("admin delete user: %d", rr.Code)
	}
	if rr := do(t, app, http.MethodGet, "/users/"+itoa(u1ID), admin, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("deleted user: expected 404 got %d", rr.Code)
	}
}

func TestErrorResponses(t *testing.T) {
	app, _ := newTestApp(t)
	u1 := signup(t, app, "u1")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   string
	}{
		{"anonymous", http.MethodGet, "/tasks", "", nil, http.StatusUnauthorized, "authentication_required"},
		{"garbage token", http.MethodGet, "/tasks", "garbage", nil, http.StatusUnauthorized, "invalid_token"},
		{"bad json", http.MethodPost, "/tasks", u1, "{", http.StatusBadRequest, "invalid_json"},
		{"missing title", http.MethodPost, "/tasks", u1, map[string]any{}, http.StatusBadRequest, "validation_error"},
		{"bad status filter", http.MethodGet, "/tasks?status=archived", u1, nil, http.StatusBadRequest, "validation_error"},
		{"bad ordering", http.MethodGet, "/categories?ordering=-secret", u1, nil, http.StatusBadRequest, "validation_error"},
		{"bad id", http.MethodGet, "/priorities/abc", u1, nil, http.StatusNotFound, "not_found"},
		{"missing login fields", http.MethodPost, "/auth/token", "", map[string]string{"username": "u1"}, http.StatusBadRequest, "validation_error"},
		{"wrong credentials", http.MethodPost, "/auth/token", "", map[string]string{"username": "u1", "password": "nope"}, http.StatusUnauthorized, "invalid_credentials"},
		{"duplicate username", http.MethodPost, "/users", "", map[string]string{"username": "u1", "password": "x"}, http.StatusBadRequest, "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, app, tt.method, tt.path, tt.token, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("expected %d got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
			if got := decode[map[string]any](t, rr)["error"]; got != tt.code {
				t.Fatalf("expected error %q got %v", tt.code, got)
			}
		})
	}

	rr := do(t, app, http.MethodPost, "/tasks", u1, map[string]any{"title": "x", "status": "done"})
	details, _ := decode[map[string]any](t, rr)["details"].(map[string]any)
	if details["status"] != "invalid_choice" {
		t.Fatalf("expected status violation, got %v", details)
	}

	rr = do(t, app, http.MethodPost, "/auth/token", "", map[string]string{})
	details, _ = decode[map[string]any](t, rr)["details"].(map[string]any)
	if details["username"] != "required" || details["password"] != "required" {
		t.Fatalf("expected both login fields required, got %v", details)
	}

	rr = do(t, app, http.MethodPost, "/users", "", map[string]string{"username": "long", "password": strings.Repeat("x", 73)})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("over-long password: expected 400 got %d", rr.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	app, _ := newTestApp(t)

	rr := do(t, app, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rr.Code)
	}
	do(t, app, http.MethodGet, "/tasks", "", nil)

	rr = do(t, app, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `route="GET /tasks",status="401"`) {
		t.Fatalf("expected instrumented request in metrics output")
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
