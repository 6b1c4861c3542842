package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/agrimart/backoffice/internal/auth"
	"github.com/agrimart/backoffice/internal/rbac"
	"github.com/agrimart/backoffice/internal/shared"
	_ "github.com/agrimart/backoffice/testing"
)

type stubRepo struct {
	cred     *auth.Credential
	sessions []auth.SessionRecord
	deleted  []string
	hashes   map[string]string
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.Credential, error) {
	if s.cred == nil || !strings.EqualFold(s.cred.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.cred, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, rec auth.SessionRecord) error {
	s.sessions = append(s.sessions, rec)
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubRepo) SetPassword(ctx context.Context, accountID, hash string) error {
	if s.hashes == nil {
		s.hashes = map[string]string{}
	}
	s.hashes[accountID] = hash
	return nil
}

type stubDirectory struct {
	logins []string
}

func (*stubDirectory) PermissionGrid(actor shared.Actor) []rbac.ModulePermissions {
	return []rbac.ModulePermissions{{Module: rbac.ModuleStaff, Actions: []rbac.Action{rbac.ActionRead}}}
}

func (d *stubDirectory) RecordLogin(accountID string, at time.Time) {
	d.logins = append(d.logins, accountID)
}

type env struct {
	handler   *auth.Handler
	sessions  *shared.SessionManager
	repo      *stubRepo
	directory *stubDirectory
}

func newEnv(t *testing.T, status string) env {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := &stubRepo{cred: &auth.Credential{AccountID: "acc-1", Email: "jane@agrimart.test", PasswordHash: string(hashed), Status: status}}
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	directory := &stubDirectory{}
	handler := auth.NewHandler(nil, auth.NewService(repo), sessionManager, csrfManager, directory)
	return env{handler: handler, sessions: sessionManager, repo: repo, directory: directory}
}

func (e env) do(t *testing.T, method, path, body string, sess *shared.Session) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sess == nil {
		var err error
		sess, err = e.sessions.Load(context.Background(), req)
		if err != nil {
			t.Fatalf("load session: %v", err)
		}
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	router := chiRouter(e.handler)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if err := e.sessions.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	return res
}

func TestLoginSucceedsForActiveAccount(t *testing.T) {
	e := newEnv(t, "active")
	sess := shared.NewSession()
	sess.ID = "sess-1"

	res := e.do(t, http.MethodPost, "/login", `{"email":"Jane@agrimart.test","password":"correctpass"}`, sess)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var body struct {
		AccountID   string                   `json:"accountId"`
		CSRFToken   string                   `json:"csrfToken"`
		Permissions []rbac.ModulePermissions `json:"permissions"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.AccountID != "acc-1" || body.CSRFToken == "" || len(body.Permissions) != 1 {
		t.Fatalf("unexpected body %+v", body)
	}
	if sess.AccountID() != "acc-1" {
		t.Fatalf("session not signed in")
	}
	if len(e.repo.sessions) != 1 || e.repo.sessions[0].ID != "sess-1" {
		t.Fatalf("expected session registered, got %+v", e.repo.sessions)
	}
	if len(e.directory.logins) != 1 || e.directory.logins[0] != "acc-1" {
		t.Fatalf("expected login stamped, got %v", e.directory.logins)
	}
}

func TestLoginRotatesCSRFToken(t *testing.T) {
	e := newEnv(t, "active")
	sess := shared.NewSession()
	sess.ID = "sess-1"
	sess.Set(shared.CSRFSessionKey, "pre-login-token")

	res := e.do(t, http.MethodPost, "/login", `{"email":"jane@agrimart.test","password":"correctpass"}`, sess)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := sess.Get(shared.CSRFSessionKey); got == "" || got == "pre-login-token" {
		t.Fatalf("csrf token not rotated: %q", got)
	}
}

func TestLoginRejections(t *testing.T) {
	cases := []struct {
		name   string
		status string
		body   string
		code   int
	}{
		{name: "wrong password", status: "active", body: `{"email":"jane@agrimart.test","password":"wrongpass"}`, code: http.StatusUnauthorized},
		{name: "unknown email", status: "active", body: `{"email":"nobody@agrimart.test","password":"correctpass"}`, code: http.StatusUnauthorized},
		{name: "suspended", status: "suspended", body: `{"email":"jane@agrimart.test","password":"correctpass"}`, code: http.StatusUnauthorized},
		{name: "pending", status: "pending", body: `{"email":"jane@agrimart.test","password":"correctpass"}`, code: http.StatusUnauthorized},
		{name: "invalid email", status: "active", body: `{"email":"jane","password":"correctpass"}`, code: http.StatusUnprocessableEntity},
		{name: "malformed json", status: "active", body: `{`, code: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, tc.status)
			sess := shared.NewSession()
			res := e.do(t, http.MethodPost, "/login", tc.body, sess)
			if res.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, res.Code, res.Body.String())
			}
			if sess.AccountID() != "" {
				t.Fatalf("session must stay anonymous")
			}
			if len(e.repo.sessions) != 0 || len(e.directory.logins) != 0 {
				t.Fatalf("no session should be registered")
			}
		})
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	e := newEnv(t, "active")
	sess := shared.NewSession()
	sess.ID = "sess-9"
	sess.SignIn("acc-1", "jane@agrimart.test")

	res := e.do(t, http.MethodPost, "/logout", "", sess)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if len(e.repo.deleted) != 1 || e.repo.deleted[0] != "sess-9" {
		t.Fatalf("expected session row deleted, got %v", e.repo.deleted)
	}
	if !strings.Contains(res.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Fatalf("expected cookie cleared, got %q", res.Header().Get("Set-Cookie"))
	}
}

func TestMeRequiresSignIn(t *testing.T) {
	e := newEnv(t, "active")
	res := e.do(t, http.MethodGet, "/me", "", shared.NewSession())
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}

	sess := shared.NewSession()
	sess.SignIn("acc-1", "jane@agrimart.test")
	res = e.do(t, http.MethodGet, "/me", "", sess)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `"email":"jane@agrimart.test"`) {
		t.Fatalf("unexpected body %s", res.Body.String())
	}
}

func TestCSRFEndpointIssuesStableToken(t *testing.T) {
	e := newEnv(t, "active")
	sess := shared.NewSession()
	sess.ID = "sess-2"
	first := e.do(t, http.MethodGet, "/csrf", "", sess)
	second := e.do(t, http.MethodGet, "/csrf", "", sess)
	if first.Code != http.StatusOK || first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical tokens, got %s and %s", first.Body.String(), second.Body.String())
	}
}

func TestHashPasswordEnforcesLength(t *testing.T) {
	if _, err := auth.HashPassword("short"); err == nil {
		t.Fatalf("expected error for short password")
	}
	hash, err := auth.HashPassword("longenough")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte("longenough")) != nil {
		t.Fatalf("hash does not verify")
	}
}

func TestSetPasswordStoresHash(t *testing.T) {
	repo := &stubRepo{}
	svc := auth.NewService(repo)
	if err := svc.SetPassword(context.Background(), "acc-1", "longenough"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if repo.hashes["acc-1"] == "" {
		t.Fatalf("hash not stored")
	}
	if err := svc.SetPassword(context.Background(), "acc-1", "x"); err == nil || errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected length error, got %v", err)
	}
}
