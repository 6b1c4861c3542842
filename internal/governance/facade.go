// Package governance is the entry point the presentation layer uses for
// account and role administration.
package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agrimart/backoffice/internal/accounts"
	"github.com/agrimart/backoffice/internal/audit"
	"github.com/agrimart/backoffice/internal/rbac"
	"github.com/agrimart/backoffice/internal/roles"
	"github.com/agrimart/backoffice/internal/shared"
)

// HistoryLoader reads persisted audit history, oldest first.
type HistoryLoader interface {
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
}

// Config collects Facade dependencies.
type Config struct {
	Roles    *roles.Registry
	Accounts *accounts.Registry
	Trail    *audit.Trail
	History  HistoryLoader
	Window   int
	Logger   *slog.Logger
}

// Facade orchestrates the registries for listing, export and mutation.
//
// mu serialises the mutations that tie accounts to role names (account
// create/update, role update/delete) so a role cannot be renamed or deleted
// while an account is being assigned to it.
type Facade struct {
	mu       sync.Mutex
	roles    *roles.Registry
	accounts *accounts.Registry
	trail    *audit.Trail
	history  HistoryLoader
	window   int
	logger   *slog.Logger
}

// New builds a Facade.
func New(cfg Config) *Facade {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := cfg.Window
	if window <= 0 {
		window = audit.DefaultWindow
	}
	return &Facade{
		roles:    cfg.Roles,
		accounts: cfg.Accounts,
		trail:    cfg.Trail,
		history:  cfg.History,
		window:   window,
		logger:   logger,
	}
}

// Refresh loads roles, accounts and recent audit history concurrently. Every
// loader runs to completion; the registries stay usable when one fails.
func (f *Facade) Refresh(ctx context.Context) error {
	var g errgroup.Group
	var rolesErr, accountsErr, historyErr error
	g.Go(func() error {
		rolesErr = f.roles.Load(ctx)
		return nil
	})
	g.Go(func() error {
		accountsErr = f.accounts.Load(ctx)
		return nil
	})
	if f.history != nil && f.trail != nil {
		g.Go(func() error {
			entries, err := f.history.Recent(ctx, f.window)
			if err != nil {
				historyErr = fmt.Errorf("governance: load audit history: %w", err)
				return nil
			}
			f.trail.Seed(entries)
			return nil
		})
	}
	_ = g.Wait()
	err := errors.Join(rolesErr, accountsErr, historyErr)
	if err != nil {
		f.logger.Warn("governance refresh incomplete", slog.Any("error", err))
	}
	return err
}

// Account returns one account.
func (f *Facade) Account(id string) (accounts.Account, error) {
	return f.accounts.Get(id)
}

// AccountByEmail finds an account by e-mail, ignoring case.
func (f *Facade) AccountByEmail(email string) (accounts.Account, bool) {
	return f.accounts.FindByEmail(email)
}

// RecordLogin stamps an account's last sign-in in memory.
func (f *Facade) RecordLogin(accountID string, at time.Time) {
	if !f.accounts.RecordLogin(accountID, at) {
		f.logger.Debug("login for unknown account", slog.String("account_id", accountID))
	}
}

// CreateAccount validates and adds an account on behalf of actor.
func (f *Facade) CreateAccount(ctx context.Context, actor shared.Actor, form accounts.Form) (accounts.Account, shared.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts.Create(ctx, actor, form)
}

// UpdateAccount replaces an account's editable fields.
func (f *Facade) UpdateAccount(ctx context.Context, actor shared.Actor, id string, form accounts.Form) (accounts.Account, shared.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts.Update(ctx, actor, id, form)
}

// DeleteAccount removes an account.
func (f *Facade) DeleteAccount(ctx context.Context, actor shared.Actor, id string) (shared.Outcome, error) {
	return f.accounts.Delete(ctx, actor, id)
}

// TransitionAccount applies a confirmed status transition.
func (f *Facade) TransitionAccount(ctx context.Context, actor shared.Actor, id string, t accounts.Transition) (accounts.Account, shared.Outcome, error) {
	return f.accounts.Apply(ctx, actor, id, t)
}

// ResendVerification re-sends the verification e-mail of a pending account.
func (f *Facade) ResendVerification(ctx context.Context, id string) error {
	return f.accounts.ResendVerification(ctx, id)
}

// SendPasswordReset sends a password reset e-mail.
func (f *Facade) SendPasswordReset(ctx context.Context, id string) error {
	return f.accounts.SendPasswordReset(ctx, id)
}

// Role returns one role with its derived user count.
func (f *Facade) Role(id string) (RoleView, error) {
	role, err := f.roles.Get(id)
	if err != nil {
		return RoleView{}, err
	}
	return RoleView{Role: role, UsersCount: f.usersFor(role.Name)}, nil
}

// CreateRole validates and adds a role.
func (f *Facade) CreateRole(ctx context.Context, actor shared.Actor, form roles.Form) (RoleView, shared.Outcome, error) {
	role, outcome, err := f.roles.Create(ctx, actor, form)
	if err != nil {
		return RoleView{}, "", err
	}
	return RoleView{Role: role, UsersCount: f.usersFor(role.Name)}, outcome, nil
}

// UpdateRole replaces a role's fields, subject to the last-admin guard.
// Renaming a role that accounts still reference fails with
// roles.ErrRoleInUse; changing only the letter case is allowed.
func (f *Facade) UpdateRole(ctx context.Context, actor shared.Actor, id string, form roles.Form) (RoleView, shared.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, err := f.roles.Get(id)
	if err != nil {
		return RoleView{}, "", err
	}
	if !roles.SameName(current.Name, form.Name) {
		if err := f.ensureUnreferenced(current); err != nil {
			return RoleView{}, "", err
		}
	}
	role, outcome, err := f.roles.Update(ctx, actor, id, form)
	if err != nil {
		return RoleView{}, "", err
	}
	return RoleView{Role: role, UsersCount: f.usersFor(role.Name)}, outcome, nil
}

// DeleteRole removes a role, subject to the last-admin guard. A role that
// accounts still reference cannot be deleted.
func (f *Facade) DeleteRole(ctx context.Context, actor shared.Actor, id string) (shared.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, err := f.roles.Get(id)
	if err != nil {
		return "", err
	}
	if err := f.ensureUnreferenced(current); err != nil {
		return "", err
	}
	return f.roles.Delete(ctx, actor, id)
}

// ensureUnreferenced fails when removing role's name would leave accounts
// pointing at no role. A same-named role in another scope keeps them
// resolvable. The last global Admin is left to the registry's guard.
func (f *Facade) ensureUnreferenced(role roles.Role) error {
	if f.roles.IsLastGlobalAdmin(role.ID) || f.roles.Others(role.ID, role.Name) > 0 {
		return nil
	}
	if n := f.usersFor(role.Name); n > 0 {
		return fmt.Errorf("role %q is assigned to %d account(s); %w", role.Name, n, roles.ErrRoleInUse)
	}
	return nil
}

// EffectivePermissions implements rbac.Resolver. Only active accounts hold
// permissions; the system actor and unknown accounts get none.
func (f *Facade) EffectivePermissions(ctx context.Context, actor shared.Actor) ([]string, error) {
	matrix, ok := f.matrixFor(actor)
	if !ok {
		return []string{}, nil
	}
	return matrix.Strings(), nil
}

// PermissionGrid returns the actor's module-ordered permission projection.
func (f *Facade) PermissionGrid(actor shared.Actor) []rbac.ModulePermissions {
	matrix, _ := f.matrixFor(actor)
	return matrix.EffectivePermissions()
}

func (f *Facade) matrixFor(actor shared.Actor) (rbac.Matrix, bool) {
	if actor.IsSystem() {
		return rbac.Matrix{}, false
	}
	account, err := f.accounts.Get(actor.AccountID)
	if err != nil {
		var found bool
		account, found = f.accounts.FindByEmail(actor.Email)
		if !found {
			return rbac.Matrix{}, false
		}
	}
	if account.Status != accounts.StatusActive {
		return rbac.Matrix{}, false
	}
	role, ok := f.roles.Lookup(account.Role)
	if !ok {
		return rbac.Matrix{}, false
	}
	return role.Permissions, true
}

func (f *Facade) usersFor(roleName string) int {
	n := 0
	for _, a := range f.accounts.List() {
		if roles.SameName(a.Role, roleName) {
			n++
		}
	}
	return n
}

var _ rbac.Resolver = (*Facade)(nil)
