package governancehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrimart/backoffice/internal/accounts"
	"github.com/agrimart/backoffice/internal/audit"
	"github.com/agrimart/backoffice/internal/governance"
	"github.com/agrimart/backoffice/internal/rbac"
	"github.com/agrimart/backoffice/internal/roles"
	"github.com/agrimart/backoffice/internal/shared"
	"github.com/agrimart/backoffice/internal/store"
	"github.com/agrimart/backoffice/internal/store/storetest"
)

type testServer struct {
	router http.Handler
	trail  *audit.Trail
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	roleTable := storetest.NewTable(
		store.RoleRow{ID: "r-admin", Name: "Admin", Scope: "global", Permissions: json.RawMessage(mustMatrix(t, rbac.FullMatrix())), CreatedAt: created},
		store.RoleRow{ID: "r-viewer", Name: "Viewer", Scope: "branch", Permissions: json.RawMessage(`{"staff":["read"],"settings":["read"]}`), CreatedAt: created},
	)
	accountTable := storetest.NewTable(
		store.AccountRow{ID: "a-admin", Name: "Owner", Email: "owner@agrimart.test", Role: "Admin", Status: "active", Branch: "HQ", AccountType: "user", CreatedAt: created},
		store.AccountRow{ID: "a-viewer", Name: "Vera", Email: "vera@agrimart.test", Role: "Viewer", Status: "active", Branch: "North", AccountType: "user", CreatedAt: created},
		store.AccountRow{ID: "a-pending", Name: "Pat", Email: "pat@agrimart.test", Role: "Viewer", Status: "pending", Branch: "North", AccountType: "user", CreatedAt: created},
	)
	trail := audit.NewTrail(audit.TrailConfig{})
	roleReg := roles.NewRegistry(roles.Config{Table: roleTable, Trail: trail})
	accReg := accounts.NewRegistry(accounts.Config{Table: accountTable, Roles: roleReg, Trail: trail})
	facade := governance.New(governance.Config{Roles: roleReg, Accounts: accReg, Trail: trail})
	require.NoError(t, facade.Refresh(context.Background()))

	handler := NewHandler(nil, facade)
	mw := rbac.Middleware{Resolver: facade}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if email := req.Header.Get("X-Test-Actor"); email != "" {
				actor := shared.NewActor("", email)
				req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/accounts", func(r chi.Router) { handler.MountAccountRoutes(r, mw) })
	r.Route("/roles", func(r chi.Router) { handler.MountRoleRoutes(r, mw) })
	return testServer{router: r, trail: trail}
}

func mustMatrix(t *testing.T, m rbac.Matrix) []byte {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	return raw
}

func (s testServer) do(method, path, actor, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set("X-Test-Actor", actor)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func TestListAccountsRequiresSignIn(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(http.MethodGet, "/accounts/", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestListAccountsWithFilters(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(http.MethodGet, "/accounts/?status=pending", "vera@agrimart.test", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Accounts []accounts.Account `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Accounts, 1)
	assert.Equal(t, "a-pending", body.Accounts[0].ID)

	rr = s.do(http.MethodGet, "/accounts/?status=archived", "vera@agrimart.test", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestViewerCannotMutate(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(http.MethodPost, "/accounts/", "vera@agrimart.test", `{"name":"X","email":"x@agrimart.test","role":"Viewer","status":"active","branch":"North"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCreateAccountValidation(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(http.MethodPost, "/accounts/", "owner@agrimart.test", `{"name":"","email":"a@b.com","branch":"Main","role":"Viewer","status":"active"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "Name is required")

	rr = s.do(http.MethodPost, "/accounts/", "owner@agrimart.test", `{"name":"Dewi","email":"dewi@agrimart.test","branch":"Main","role":"viewer","status":"pending"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var body accountResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Viewer", body.Account.Role)
	assert.Equal(t, shared.OutcomePersisted, body.Outcome)
}

func TestTransitionRequiresConfirmation(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(http.MethodPost, "/accounts/a-viewer/suspend", "owner@agrimart.test", "")
	require.Equal(t, http.StatusPreconditionRequired, rr.Code)
	assert.Contains(t, rr.Body.String(), "Suspend Vera (vera@agrimart.test)")
	assert.Empty(t, s.trail.Recent())

	rr = s.do(http.MethodPost, "/accounts/a-viewer/suspend", "owner@agrimart.test", `{"confirm":true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var body accountResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, accounts.StatusSuspended, body.Account.Status)

	entries := s.trail.Recent()
	require.Len(t, entries, 1)
	assert.Equal(t, "owner@agrimart.test", entries[0].ActorLabel())

	rr = s.do(http.MethodPost, "/accounts/a-viewer/deactivate", "owner@agrimart.test", `{"confirm":true}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(http.MethodPost, "/accounts/missing/activate", "owner@agrimart.test", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRoleGuardSurfacesConflict(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(http.MethodDelete, "/roles/r-admin", "owner@agrimart.test", "")
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "global")

	rr = s.do(http.MethodGet, "/roles/r-admin", "owner@agrimart.test", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var view governance.RoleView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, 1, view.UsersCount)
}

func TestRoleInUseSurfacesConflict(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(http.MethodPut, "/roles/r-viewer", "owner@agrimart.test", `{"name":"Auditor","scope":"branch","permissions":{}}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "2 account(s)")

	rr = s.do(http.MethodDelete, "/roles/r-viewer", "owner@agrimart.test", "")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(http.MethodGet, "/roles/r-viewer", "owner@agrimart.test", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var view governance.RoleView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, "Viewer", view.Name)
	assert.Equal(t, 2, view.UsersCount)
}

func TestExportAccountsCSV(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(http.MethodGet, "/accounts/export.csv?sort=name&dir=desc", "owner@agrimart.test", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\r\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], `"Vera"`))

	rr = s.do(http.MethodGet, "/accounts/export.csv", "vera@agrimart.test", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestResendVerification(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(http.MethodPost, "/accounts/a-viewer/resend-verification", "owner@agrimart.test", "")
	assert.Equal(t, http.StatusConflict, rr.Code, "only pending accounts")
	rr = s.do(http.MethodPost, "/accounts/a-pending/resend-verification", "owner@agrimart.test", "")
	assert.Equal(t, http.StatusConflict, rr.Code, "no notifier configured")
}

func TestListRolesByScope(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(http.MethodGet, "/roles/?scope=branch", "vera@agrimart.test", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Roles []governance.RoleView `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Roles, 1)
	assert.Equal(t, "Viewer", body.Roles[0].Name)
	assert.Equal(t, 2, body.Roles[0].UsersCount)
}
