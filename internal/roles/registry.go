package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/agrimart/backoffice/internal/audit"
	"github.com/agrimart/backoffice/internal/platform/validation"
	"github.com/agrimart/backoffice/internal/rbac"
	"github.com/agrimart/backoffice/internal/shared"
	"github.com/agrimart/backoffice/internal/store"
)

// Config collects Registry dependencies.
type Config struct {
	Table  store.Table[store.RoleRow]
	Trail  *audit.Trail
	Logger *slog.Logger
	Now    func() time.Time
}

const nameTaken = "A role with this name already exists in this scope"

// Registry owns the in-memory role set and enforces the last-admin guard.
//
// Every mutation holds the registry lock across its remote round-trip so
// operations apply one at a time. Across processes the remote store is
// last-writer-wins.
//
// Role mutations are audited with entity "role", mirroring accounts.
type Registry struct {
	mu       sync.Mutex
	roles    []Role
	table    store.Table[store.RoleRow]
	trail    *audit.Trail
	logger   *slog.Logger
	now      func() time.Time
	validate *validator.Validate
}

// NewRegistry builds an empty registry. Call Load before serving requests.
func NewRegistry(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	trail := cfg.Trail
	if trail == nil {
		trail = audit.NewTrail(audit.TrailConfig{Logger: logger})
	}
	return &Registry{
		table:    cfg.Table,
		trail:    trail,
		logger:   logger,
		now:      now,
		validate: validation.New(),
	}
}

// Load replaces the registry with the remote role set. Rows that fail
// conversion are skipped. When the load succeeds without a global Admin
// role, one with every permission is created on behalf of the system. When
// the load fails the current state is kept; an empty registry then gets a
// local Admin placeholder that is never written remotely, so a transient read
// failure cannot duplicate the stored Admin row.
func (r *Registry) Load(ctx context.Context) error {
	rows, err := r.table.Select(ctx, nil)
	if err != nil {
		err = fmt.Errorf("roles: load: %w", err)
		r.logger.Warn("load roles", slog.Any("error", err))
		r.placeholderAdmin()
		return err
	}
	loaded := make([]Role, 0, len(rows))
	for _, row := range rows {
		role, convErr := fromRow(row)
		if convErr != nil {
			r.logger.Warn("skip role row", slog.String("id", row.ID), slog.Any("error", convErr))
			continue
		}
		loaded = append(loaded, role)
	}
	r.mu.Lock()
	r.roles = loaded
	r.mu.Unlock()
	r.ensureAdmin(ctx)
	return nil
}

func adminRole() Role {
	return Role{
		Name:        AdminRoleName,
		Description: "Full access to every module",
		Scope:       ScopeGlobal,
		Permissions: rbac.FullMatrix(),
	}
}

func (r *Registry) ensureAdmin(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countGlobalAdmins("") > 0 {
		return
	}
	created, outcome, err := r.insertLocked(ctx, adminRole())
	if err != nil {
		// Another process stored an Admin between our read and write.
		r.logger.Warn("admin role already stored", slog.Any("error", err))
		r.appendPlaceholderLocked()
		return
	}
	r.logger.Info("seeded global admin role", slog.String("id", created.ID), slog.String("outcome", string(outcome)))
	r.record(ctx, shared.SystemActor(), audit.ActionCreate, created, outcome)
}

func (r *Registry) placeholderAdmin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countGlobalAdmins("") > 0 {
		return
	}
	r.appendPlaceholderLocked()
}

func (r *Registry) appendPlaceholderLocked() {
	role := adminRole()
	role.ID = uuid.NewString()
	role.CreatedAt = r.now().UTC()
	r.roles = append(r.roles, role)
	r.logger.Warn("using local admin role until roles reload", slog.String("id", role.ID))
}

// List returns the roles in registry order.
func (r *Registry) List() []Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Role, len(r.roles))
	copy(out, r.roles)
	return out
}

// Get returns the role with id.
func (r *Registry) Get(id string) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOf(id)
	if idx < 0 {
		return Role{}, ErrNotFound
	}
	return r.roles[idx], nil
}

// Lookup resolves a role name case-insensitively in any scope and returns
// the stored spelling. Global roles win over branch roles with the same name.
func (r *Registry) Lookup(name string) (Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found Role
	ok := false
	for _, role := range r.roles {
		if !SameName(role.Name, name) {
			continue
		}
		if !ok || (found.Scope != ScopeGlobal && role.Scope == ScopeGlobal) {
			found, ok = role, true
		}
	}
	return found, ok
}

// IsLastGlobalAdmin reports whether id is the only role the last-admin guard
// protects.
func (r *Registry) IsLastGlobalAdmin(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOf(id)
	return idx >= 0 && r.roles[idx].IsGlobalAdmin() && r.countGlobalAdmins(id) == 0
}

// Others returns how many roles other than id share name, in any scope.
func (r *Registry) Others(id, name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, role := range r.roles {
		if role.ID != id && SameName(role.Name, name) {
			n++
		}
	}
	return n
}

// Create validates form and adds a role. Creation is never blocked by the
// last-admin guard.
func (r *Registry) Create(ctx context.Context, actor shared.Actor, form Form) (Role, shared.Outcome, error) {
	form = form.normalized()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.validateLocked(form, ""); err != nil {
		return Role{}, "", err
	}
	role := Role{
		Name:        form.Name,
		Description: form.Description,
		Scope:       form.Scope,
		Permissions: form.Permissions,
	}
	created, outcome, err := r.insertLocked(ctx, role)
	if err != nil {
		return Role{}, "", err
	}
	r.record(ctx, actor, audit.ActionCreate, created, outcome)
	return created, outcome, nil
}

// Update replaces a role's fields. Renaming or rescoping the last global
// Admin role fails with ErrLastAdminGuard and changes nothing.
func (r *Registry) Update(ctx context.Context, actor shared.Actor, id string, form Form) (Role, shared.Outcome, error) {
	form = form.normalized()
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOf(id)
	if idx < 0 {
		return Role{}, "", ErrNotFound
	}
	if err := r.validateLocked(form, id); err != nil {
		return Role{}, "", err
	}
	before := r.roles[idx]
	after := before
	after.Name = form.Name
	after.Description = form.Description
	after.Scope = form.Scope
	after.Permissions = form.Permissions
	if before.IsGlobalAdmin() && !after.IsGlobalAdmin() && r.countGlobalAdmins(id) == 0 {
		return Role{}, "", ErrLastAdminGuard
	}

	patch, err := diff(before, after)
	if err != nil {
		return Role{}, "", err
	}
	var remoteErr error
	if len(patch) > 0 {
		remoteErr = r.table.Update(ctx, id, patch)
	}
	if errors.Is(remoteErr, store.ErrDuplicate) {
		return Role{}, "", validation.Errors{"name": nameTaken}
	}
	outcome := shared.OutcomeOf(remoteErr)
	if remoteErr != nil {
		r.logger.Warn("role update kept locally", slog.String("id", id), slog.Any("error", remoteErr))
	}
	r.roles[idx] = after
	r.record(ctx, actor, audit.ActionUpdate, after, outcome)
	return after, outcome, nil
}

// Delete removes a role. Deleting the last global Admin role fails with
// ErrLastAdminGuard. Accounts still naming the role are left untouched.
func (r *Registry) Delete(ctx context.Context, actor shared.Actor, id string) (shared.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOf(id)
	if idx < 0 {
		return "", ErrNotFound
	}
	role := r.roles[idx]
	if role.IsGlobalAdmin() && r.countGlobalAdmins(id) == 0 {
		return "", ErrLastAdminGuard
	}
	remoteErr := r.table.Delete(ctx, id)
	outcome := shared.OutcomeOf(remoteErr)
	if remoteErr != nil {
		r.logger.Warn("role delete kept locally", slog.String("id", id), slog.Any("error", remoteErr))
	}
	r.roles = append(r.roles[:idx:idx], r.roles[idx+1:]...)
	r.record(ctx, actor, audit.ActionDelete, role, outcome)
	return outcome, nil
}

// insertLocked writes role remotely and appends it. A remote duplicate is
// returned as a name error and nothing is appended; any other remote failure
// keeps the role locally.
func (r *Registry) insertLocked(ctx context.Context, role Role) (Role, shared.Outcome, error) {
	role.ID = uuid.NewString()
	role.CreatedAt = r.now().UTC()
	var remoteErr error
	row, err := toRow(role)
	if err != nil {
		remoteErr = err
	} else if id, insertErr := r.table.Insert(ctx, row); insertErr != nil {
		remoteErr = insertErr
	} else if id != "" {
		role.ID = id
	}
	if errors.Is(remoteErr, store.ErrDuplicate) {
		return Role{}, "", validation.Errors{"name": nameTaken}
	}
	if remoteErr != nil {
		r.logger.Warn("role create kept locally", slog.String("id", role.ID), slog.Any("error", remoteErr))
	}
	r.roles = append(r.roles, role)
	return role, shared.OutcomeOf(remoteErr), nil
}

func (r *Registry) validateLocked(form Form, selfID string) error {
	errs := validation.Struct(r.validate, form)
	if _, bad := errs["name"]; !bad && form.Name != "" {
		for _, other := range r.roles {
			if other.ID != selfID && other.Scope == form.Scope && SameName(other.Name, form.Name) {
				errs.Add("name", nameTaken)
				break
			}
		}
	}
	return errs.Err()
}

// countGlobalAdmins counts qualifying roles other than exceptID.
func (r *Registry) countGlobalAdmins(exceptID string) int {
	n := 0
	for _, role := range r.roles {
		if role.ID != exceptID && role.IsGlobalAdmin() {
			n++
		}
	}
	return n
}

func (r *Registry) indexOf(id string) int {
	for i, role := range r.roles {
		if role.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) record(ctx context.Context, actor shared.Actor, action audit.Action, role Role, outcome shared.Outcome) {
	details := map[string]any{
		"name":  role.Name,
		"scope": string(role.Scope),
	}
	if outcome.LocalOnly() {
		details[audit.DetailLocalOnly] = true
	}
	r.trail.Append(ctx, audit.Entry{
		Actor:    actor.EmailRef(),
		Action:   action,
		Entity:   audit.EntityRole,
		TargetID: role.ID,
		Details:  details,
	})
}
