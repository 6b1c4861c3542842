package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrimart/backoffice/internal/audit"
	"github.com/agrimart/backoffice/internal/platform/httpx"
	"github.com/agrimart/backoffice/internal/platform/validation"
	"github.com/agrimart/backoffice/internal/roles"
	"github.com/agrimart/backoffice/internal/shared"
	"github.com/agrimart/backoffice/internal/store"
	"github.com/agrimart/backoffice/internal/store/storetest"
)

var operator = shared.NewActor("acc-admin", "admin@agrimart.test")

type stubRoles []roles.Role

func (s stubRoles) Lookup(name string) (roles.Role, bool) {
	for _, r := range s {
		if roles.SameName(r.Name, name) {
			return r, true
		}
	}
	return roles.Role{}, false
}

type stubNotifier struct {
	err      error
	verified []string
	resets   []string
}

func (s *stubNotifier) ResendVerification(ctx context.Context, a Account) error {
	s.verified = append(s.verified, a.Email)
	return s.err
}

func (s *stubNotifier) SendPasswordReset(ctx context.Context, a Account) error {
	s.resets = append(s.resets, a.Email)
	return s.err
}

type fixture struct {
	reg      *Registry
	table    *storetest.Table[store.AccountRow]
	trail    *audit.Trail
	notifier *stubNotifier
}

func newFixture(t *testing.T, rows ...store.AccountRow) fixture {
	t.Helper()
	f := fixture{
		table:    storetest.NewTable(rows...),
		trail:    audit.NewTrail(audit.TrailConfig{}),
		notifier: &stubNotifier{},
	}
	f.reg = NewRegistry(Config{
		Table:    f.table,
		Roles:    stubRoles{{Name: "Admin", Scope: roles.ScopeGlobal}, {Name: "Manager", Scope: roles.ScopeGlobal}, {Name: "Staff", Scope: roles.ScopeBranch}},
		Trail:    f.trail,
		Notifier: f.notifier,
		Now:      func() time.Time { return time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC) },
	})
	if len(rows) > 0 {
		require.NoError(t, f.reg.Load(context.Background()))
	}
	return f
}

func accountRow(id, email, status, typ string) store.AccountRow {
	return store.AccountRow{
		ID:          id,
		Name:        "Account " + id,
		Email:       email,
		Role:        "Staff",
		Status:      status,
		Branch:      "Main",
		AccountType: typ,
		CreatedAt:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func validForm() Form {
	return Form{Name: "Jane Doe", Email: "jane@agrimart.test", Role: "Staff", Status: StatusActive, Branch: "Main"}
}

func TestCreateRejectsMissingName(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.reg.Create(context.Background(), operator, Form{Name: "", Email: "a@b.com", Branch: "Main", Role: "Staff", Status: StatusActive})

	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, validation.Errors{"name": "Name is required"}, errs)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Empty(t, f.reg.List())
	assert.Zero(t, f.table.Calls["insert"])
	assert.Empty(t, f.trail.Recent())
}

func TestCreateFieldMessages(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.reg.Create(context.Background(), operator, Form{Name: "Jane", Email: "jane-at-example", Role: "Cashier", Status: "retired"})
	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, "Enter a valid email address", errs["email"])
	assert.Equal(t, "Branch is required", errs["branch"])
	assert.Equal(t, "Select an existing role", errs["role"])
	assert.Contains(t, errs["status"], "Status must be one of")
}

func TestCreatePersistsAndAudits(t *testing.T) {
	f := newFixture(t)
	form := validForm()
	form.Role = "staff"
	created, outcome, err := f.reg.Create(context.Background(), operator, form)
	require.NoError(t, err)
	assert.Equal(t, shared.OutcomePersisted, outcome)
	assert.Equal(t, "Staff", created.Role, "role name is canonicalised")
	assert.Equal(t, TypeUser, created.Type)
	assert.Equal(t, time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC), created.CreatedAt)

	rows := f.table.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, created.ID, rows[0].ID)

	entries := f.trail.Recent()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionCreate, entries[0].Action)
	assert.Equal(t, "jane@agrimart.test", entries[0].TargetEmail)
	assert.Equal(t, "Staff", entries[0].Details["role"])
	assert.Equal(t, "active", entries[0].Details["status"])
	assert.False(t, entries[0].LocalOnly())
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	f := newFixture(t, accountRow("a1", "Jane@AgriMart.test", "active", "user"))
	_, _, err := f.reg.Create(context.Background(), operator, validForm())
	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, emailTaken, errs["email"])
}

func TestCreateRemoteDuplicateIsRejected(t *testing.T) {
	f := newFixture(t)
	f.table.Fail("insert", store.ErrDuplicate)
	_, _, err := f.reg.Create(context.Background(), operator, validForm())
	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.Contains(t, errs, "email")
	assert.Empty(t, f.reg.List())
	assert.Empty(t, f.trail.Recent())
}

func TestCreateKeepsAccountLocallyWhenRemoteFails(t *testing.T) {
	f := newFixture(t)
	f.table.Fail("insert", storetest.ErrUnavailable)

	created, outcome, err := f.reg.Create(context.Background(), operator, validForm())
	require.NoError(t, err)
	assert.Equal(t, shared.OutcomeLocalOnly, outcome)
	assert.NotEmpty(t, created.ID)

	got, err := f.reg.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@agrimart.test", got.Email)
	assert.Empty(t, f.table.Rows())

	entries := f.trail.Recent()
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].Details["localOnly"])
	assert.Equal(t, created.ID, entries[0].TargetID)
}

func TestSuspendPendingThenReactivate(t *testing.T) {
	f := newFixture(t, accountRow("a1", "pending@agrimart.test", "pending", "user"))

	suspended, _, err := f.reg.Suspend(context.Background(), operator, "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, suspended.Status)

	active, outcome, err := f.reg.Activate(context.Background(), operator, "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, active.Status)
	assert.Equal(t, shared.OutcomePersisted, outcome)
	assert.Equal(t, "active", f.table.Rows()[0].Status)

	entries := f.trail.Recent()
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionSuspend, entries[0].Action)
	assert.Equal(t, "pending", entries[0].Details["from"])
	assert.Equal(t, audit.ActionActivate, entries[1].Action)
}

func TestTransitionsReachTargetAndAudit(t *testing.T) {
	cases := []struct {
		from       string
		transition Transition
		action     audit.Action
	}{
		{"pending", TransitionActivate, audit.ActionActivate},
		{"inactive", TransitionActivate, audit.ActionActivate},
		{"suspended", TransitionActivate, audit.ActionActivate},
		{"active", TransitionDeactivate, audit.ActionDeactivate},
		{"pending", TransitionDeactivate, audit.ActionDeactivate},
		{"active", TransitionSuspend, audit.ActionSuspend},
		{"inactive", TransitionSuspend, audit.ActionSuspend},
		{"suspended", TransitionSuspend, audit.ActionSuspend},
	}
	for _, tc := range cases {
		t.Run(tc.from+"_"+string(tc.transition), func(t *testing.T) {
			f := newFixture(t, accountRow("a1", "x@agrimart.test", tc.from, "user"))
			got, _, err := f.reg.Apply(context.Background(), operator, "a1", tc.transition)
			require.NoError(t, err)
			assert.Equal(t, tc.transition.Target(), got.Status)

			entries := f.trail.Recent()
			require.Len(t, entries, 1)
			assert.Equal(t, tc.action, entries[0].Action)
			assert.Equal(t, "a1", entries[0].TargetID)
			assert.Equal(t, "x@agrimart.test", entries[0].TargetEmail)
			assert.Equal(t, "admin@agrimart.test", entries[0].ActorLabel())
		})
	}
}

func TestDeactivateTwiceIsAuditedTwice(t *testing.T) {
	f := newFixture(t, accountRow("a1", "x@agrimart.test", "active", "user"))
	for i := 0; i < 2; i++ {
		got, outcome, err := f.reg.Deactivate(context.Background(), operator, "a1")
		require.NoError(t, err)
		assert.Equal(t, StatusInactive, got.Status)
		assert.Equal(t, shared.OutcomePersisted, outcome)
	}
	entries := f.trail.Recent()
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionDeactivate, entries[0].Action)
	assert.Equal(t, audit.ActionDeactivate, entries[1].Action)
	assert.Equal(t, 1, f.table.Calls["update"], "no remote write when the status is unchanged")
}

func TestDeactivateSuspendedIsRejected(t *testing.T) {
	f := newFixture(t, accountRow("a1", "x@agrimart.test", "suspended", "user"))
	_, _, err := f.reg.Deactivate(context.Background(), operator, "a1")
	require.ErrorIs(t, err, ErrInvalidTransition)
	got, _ := f.reg.Get("a1")
	assert.Equal(t, StatusSuspended, got.Status)
	assert.Empty(t, f.trail.Recent())
}

func TestTransitionRemoteFailureIsLocalOnly(t *testing.T) {
	f := newFixture(t, accountRow("a1", "x@agrimart.test", "active", "user"))
	f.table.Fail("update", storetest.ErrUnavailable)

	got, outcome, err := f.reg.Suspend(context.Background(), operator, "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, got.Status)
	assert.Equal(t, shared.OutcomeLocalOnly, outcome)
	assert.Equal(t, "active", f.table.Rows()[0].Status)
	assert.True(t, f.trail.Recent()[0].LocalOnly())
}

func TestTransitionUnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.reg.Activate(context.Background(), operator, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = f.reg.Apply(context.Background(), operator, "missing", "archive")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t, accountRow("a1", "x@agrimart.test", "active", "user"))
	form := Form{Name: "Renamed", Email: "x@agrimart.test", Role: "manager", Status: StatusInactive, Branch: "North"}
	got, outcome, err := f.reg.Update(context.Background(), operator, "a1", form)
	require.NoError(t, err)
	assert.Equal(t, shared.OutcomePersisted, outcome)
	assert.Equal(t, "Manager", got.Role)
	assert.Equal(t, "North", f.table.Rows()[0].Branch)
	assert.Equal(t, "inactive", f.table.Rows()[0].Status)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), got.CreatedAt, "createdAt is immutable")

	entry := f.trail.Recent()[0]
	assert.Equal(t, audit.ActionUpdate, entry.Action)
	assert.Equal(t, "Manager", entry.Details["role"])
}

func TestUpdateUnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.reg.Update(context.Background(), operator, "missing", validForm())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, errors.Is(err, httpx.ErrNotFound))
}

func TestUpdateStatusFollowsStateMachine(t *testing.T) {
	f := newFixture(t, accountRow("a1", "x@agrimart.test", "suspended", "user"))
	form := Form{Name: "X", Email: "x@agrimart.test", Role: "Staff", Status: StatusPending, Branch: "Main"}
	_, _, err := f.reg.Update(context.Background(), operator, "a1", form)
	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, "Cannot change status from suspended to pending", errs["status"])
}

func TestDeleteRetainsAuditHistory(t *testing.T) {
	f := newFixture(t, accountRow("a1", "x@agrimart.test", "active", "user"))
	f.table.Fail("delete", storetest.ErrUnavailable)

	outcome, err := f.reg.Delete(context.Background(), operator, "a1")
	require.NoError(t, err)
	assert.Equal(t, shared.OutcomeLocalOnly, outcome)
	assert.Empty(t, f.reg.List())

	entry := f.trail.Recent()[0]
	assert.Equal(t, audit.ActionDelete, entry.Action)
	assert.Equal(t, "x@agrimart.test", entry.TargetEmail)
	assert.True(t, entry.LocalOnly())

	_, err = f.reg.Delete(context.Background(), operator, "a1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStaffLinks(t *testing.T) {
	f := newFixture(t,
		accountRow("u1", "user@agrimart.test", "active", "user"),
		accountRow("s1", "staff@agrimart.test", "active", "staff"),
	)
	form := validForm()
	form.AccountType = TypeStaff
	form.LinkedUserID = "s1"
	_, _, err := f.reg.Create(context.Background(), operator, form)
	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, "Linked user account does not exist", errs["linkedUserId"])

	form.AccountType = TypeUser
	form.LinkedUserID = "u1"
	_, _, err = f.reg.Create(context.Background(), operator, form)
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, "Only staff accounts can link to a user account", errs["linkedUserId"])

	form.AccountType = TypeStaff
	staff, _, err := f.reg.Create(context.Background(), operator, form)
	require.NoError(t, err)
	require.NotNil(t, staff.LinkedUserID)
	assert.Equal(t, "u1", *staff.LinkedUserID)

	_, err = f.reg.Delete(context.Background(), operator, "u1")
	require.NoError(t, err)
	got, err := f.reg.Get(staff.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LinkedUserID)

	entries := f.trail.Recent()
	assert.Equal(t, 1, entries[len(entries)-1].Details["unlinkedStaff"])
}

func TestResendVerification(t *testing.T) {
	f := newFixture(t,
		accountRow("p1", "pending@agrimart.test", "pending", "user"),
		accountRow("a1", "active@agrimart.test", "active", "user"),
	)
	require.NoError(t, f.reg.ResendVerification(context.Background(), "p1"))
	assert.Equal(t, []string{"pending@agrimart.test"}, f.notifier.verified)

	assert.ErrorIs(t, f.reg.ResendVerification(context.Background(), "a1"), ErrNotPending)
	assert.ErrorIs(t, f.reg.ResendVerification(context.Background(), "zz"), ErrNotFound)

	f.notifier.err = errors.New("smtp down")
	err := f.reg.SendPasswordReset(context.Background(), "a1")
	require.Error(t, err)
	got, _ := f.reg.Get("a1")
	assert.Equal(t, StatusActive, got.Status)
	assert.Empty(t, f.trail.Recent(), "notifications are not audited")
}

func TestLoadSkipsMalformedRows(t *testing.T) {
	f := newFixture(t,
		accountRow("a1", "ok@agrimart.test", "active", "user"),
		accountRow("a2", "bad@agrimart.test", "archived", "user"),
		accountRow("a3", "bad2@agrimart.test", "active", "robot"),
	)
	list := f.reg.List()
	require.Len(t, list, 1)
	assert.Equal(t, "a1", list[0].ID)

	found, ok := f.reg.FindByEmail(" OK@agrimart.test ")
	require.True(t, ok)
	assert.Equal(t, "a1", found.ID)
}

func TestLoadFailureKeepsState(t *testing.T) {
	f := newFixture(t, accountRow("a1", "ok@agrimart.test", "active", "user"))
	f.table.Fail("select", storetest.ErrUnavailable)
	require.Error(t, f.reg.Load(context.Background()))
	assert.Len(t, f.reg.List(), 1)
}

func TestRecordLoginIsLocal(t *testing.T) {
	f := newFixture(t, accountRow("a1", "ok@agrimart.test", "active", "user"))
	at := time.Date(2025, 2, 2, 7, 30, 0, 0, time.FixedZone("WIB", 7*3600))

	require.True(t, f.reg.RecordLogin("a1", at))
	assert.False(t, f.reg.RecordLogin("missing", at))

	got, err := f.reg.Get("a1")
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, got.LastLoginAt.Equal(at))
	assert.Equal(t, time.UTC, got.LastLoginAt.Location())
	assert.Zero(t, f.table.Calls["update"])
	assert.Empty(t, f.trail.Recent())
}
