package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/agrimart/backoffice/internal/audit"
	"github.com/agrimart/backoffice/internal/platform/validation"
	"github.com/agrimart/backoffice/internal/shared"
	"github.com/agrimart/backoffice/internal/store"
)

// Config collects Registry dependencies.
type Config struct {
	Table    store.Table[store.AccountRow]
	Roles    RoleLookup
	Trail    *audit.Trail
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// Registry owns the in-memory account set.
//
// Each mutation attempts one remote write, always appends an audit entry and
// then applies the change locally. A failed remote write is never rolled back
// locally; it is reported as OutcomeLocalOnly and flagged in the audit entry.
// The registry lock is held across the remote round-trip. Concurrent admins in
// other processes are last-writer-wins.
type Registry struct {
	mu       sync.Mutex
	accounts []Account
	table    store.Table[store.AccountRow]
	roles    RoleLookup
	trail    *audit.Trail
	notifier Notifier
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
		roles:    cfg.Roles,
		trail:    trail,
		notifier: cfg.Notifier,
		logger:   logger,
		now:      now,
		validate: validation.New(),
	}
}

// Load replaces the registry with the remote account set. Rows that fail
// conversion are skipped. On error the current state is kept.
func (r *Registry) Load(ctx context.Context) error {
	rows, err := r.table.Select(ctx, nil)
	if err != nil {
		return fmt.Errorf("accounts: load: %w", err)
	}
	loaded := make([]Account, 0, len(rows))
	for _, row := range rows {
		a, convErr := fromRow(row)
		if convErr != nil {
			r.logger.Warn("skip account row", slog.String("id", row.ID), slog.Any("error", convErr))
			continue
		}
		loaded = append(loaded, a)
	}
	r.mu.Lock()
	r.accounts = loaded
	r.mu.Unlock()
	return nil
}

// List returns accounts in registry order.
func (r *Registry) List() []Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Account, len(r.accounts))
	for i, a := range r.accounts {
		out[i] = a.clone()
	}
	return out
}

// Get returns the account with id.
func (r *Registry) Get(id string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOf(id)
	if idx < 0 {
		return Account{}, ErrNotFound
	}
	return r.accounts[idx].clone(), nil
}

// FindByEmail resolves an account by e-mail, case-insensitively.
func (r *Registry) FindByEmail(email string) (Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := foldEmail(email)
	for _, a := range r.accounts {
		if foldEmail(a.Email) == key {
			return a.clone(), true
		}
	}
	return Account{}, false
}

// Create validates form and adds an account. When the remote insert fails the
// account is kept locally under its generated id.
func (r *Registry) Create(ctx context.Context, actor shared.Actor, form Form) (Account, shared.Outcome, error) {
	form = form.normalized()
	r.mu.Lock()
	defer r.mu.Unlock()
	roleName, err := r.validateLocked(form, nil)
	if err != nil {
		return Account{}, "", err
	}
	a := Account{
		ID:        uuid.NewString(),
		Name:      form.Name,
		Email:     form.Email,
		Role:      roleName,
		Status:    form.Status,
		Branch:    form.Branch,
		Type:      form.AccountType,
		CreatedAt: r.now().UTC(),
	}
	if form.LinkedUserID != "" {
		link := form.LinkedUserID
		a.LinkedUserID = &link
	}

	id, remoteErr := r.table.Insert(ctx, toRow(a))
	if errors.Is(remoteErr, store.ErrDuplicate) {
		return Account{}, "", validation.Errors{"email": emailTaken}
	}
	if remoteErr == nil && id != "" {
		a.ID = id
	}
	outcome := r.outcome("create", a.ID, remoteErr)
	r.accounts = append(r.accounts, a)
	r.record(ctx, actor, audit.ActionCreate, a, outcome, map[string]any{
		"role":        a.Role,
		"status":      string(a.Status),
		"branch":      a.Branch,
		"accountType": string(a.Type),
	})
	return a.clone(), outcome, nil
}

// Update replaces an account's editable fields. A status change must be a
// transition the state machine allows.
func (r *Registry) Update(ctx context.Context, actor shared.Actor, id string, form Form) (Account, shared.Outcome, error) {
	form = form.normalized()
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOf(id)
	if idx < 0 {
		return Account{}, "", ErrNotFound
	}
	before := r.accounts[idx]
	roleName, err := r.validateLocked(form, &before)
	if err != nil {
		return Account{}, "", err
	}
	after := before.clone()
	after.Name = form.Name
	after.Email = form.Email
	after.Role = roleName
	after.Status = form.Status
	after.Branch = form.Branch
	after.Type = form.AccountType
	after.LinkedUserID = nil
	if form.LinkedUserID != "" {
		link := form.LinkedUserID
		after.LinkedUserID = &link
	}

	var remoteErr error
	if patch := diff(before, after); len(patch) > 0 {
		remoteErr = r.table.Update(ctx, id, patch)
	}
	if errors.Is(remoteErr, store.ErrDuplicate) {
		return Account{}, "", validation.Errors{"email": emailTaken}
	}
	outcome := r.outcome("update", id, remoteErr)
	r.accounts[idx] = after
	r.record(ctx, actor, audit.ActionUpdate, after, outcome, map[string]any{
		"role":   after.Role,
		"status": string(after.Status),
		"branch": after.Branch,
	})
	return after.clone(), outcome, nil
}

// Delete removes an account. Audit history keeps its id and e-mail. Staff
// accounts linked to a deleted user lose the link.
func (r *Registry) Delete(ctx context.Context, actor shared.Actor, id string) (shared.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOf(id)
	if idx < 0 {
		return "", ErrNotFound
	}
	removed := r.accounts[idx]
	remoteErr := r.table.Delete(ctx, id)
	outcome := r.outcome("delete", id, remoteErr)
	r.accounts = append(r.accounts[:idx:idx], r.accounts[idx+1:]...)

	details := map[string]any{"role": removed.Role}
	if unlinked := r.unlinkLocked(ctx, id); unlinked > 0 {
		details["unlinkedStaff"] = unlinked
	}
	r.record(ctx, actor, audit.ActionDelete, removed, outcome, details)
	return outcome, nil
}

// Activate moves an account to active. Valid from every status.
func (r *Registry) Activate(ctx context.Context, actor shared.Actor, id string) (Account, shared.Outcome, error) {
	return r.transition(ctx, actor, id, TransitionActivate)
}

// Deactivate moves an account to inactive. Deactivating an inactive account
// succeeds and is audited again.
func (r *Registry) Deactivate(ctx context.Context, actor shared.Actor, id string) (Account, shared.Outcome, error) {
	return r.transition(ctx, actor, id, TransitionDeactivate)
}

// Suspend moves an account to suspended. Valid from every status.
func (r *Registry) Suspend(ctx context.Context, actor shared.Actor, id string) (Account, shared.Outcome, error) {
	return r.transition(ctx, actor, id, TransitionSuspend)
}

// Apply runs a transition by name. Callers must have confirmed it with the
// operator already.
func (r *Registry) Apply(ctx context.Context, actor shared.Actor, id string, t Transition) (Account, shared.Outcome, error) {
	if _, ok := ParseTransition(string(t)); !ok {
		return Account{}, "", fmt.Errorf("accounts: unknown transition %q: %w", string(t), ErrInvalidTransition)
	}
	return r.transition(ctx, actor, id, t)
}

func (r *Registry) transition(ctx context.Context, actor shared.Actor, id string, t Transition) (Account, shared.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOf(id)
	if idx < 0 {
		return Account{}, "", ErrNotFound
	}
	current := r.accounts[idx]
	target := t.Target()
	if !CanTransition(current.Status, target) {
		return Account{}, "", fmt.Errorf("%s a %s account: %w", t, current.Status, ErrInvalidTransition)
	}

	var remoteErr error
	if current.Status != target {
		remoteErr = r.table.Update(ctx, id, store.Patch{"status": string(target)})
	}
	outcome := r.outcome(string(t), id, remoteErr)
	updated := current.clone()
	updated.Status = target
	r.accounts[idx] = updated
	r.record(ctx, actor, t.auditAction(), updated, outcome, map[string]any{
		"from": string(current.Status),
		"to":   string(target),
	})
	return updated.clone(), outcome, nil
}

// RecordLogin stamps the last sign-in time locally. The auth layer persists
// the same value with the session row, so no remote write or audit entry is
// made here.
func (r *Registry) RecordLogin(id string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOf(id)
	if idx < 0 {
		return false
	}
	t := at.UTC()
	r.accounts[idx].LastLoginAt = &t
	return true
}

// ResendVerification asks the notifier to resend the verification e-mail to a
// pending account. It is not audited and never changes state.
func (r *Registry) ResendVerification(ctx context.Context, id string) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	if a.Status != StatusPending {
		return ErrNotPending
	}
	if r.notifier == nil {
		return ErrNotifierUnavailable
	}
	if err := r.notifier.ResendVerification(ctx, a); err != nil {
		return fmt.Errorf("accounts: resend verification: %w", err)
	}
	return nil
}

// SendPasswordReset asks the notifier to send a password reset e-mail.
func (r *Registry) SendPasswordReset(ctx context.Context, id string) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	if r.notifier == nil {
		return ErrNotifierUnavailable
	}
	if err := r.notifier.SendPasswordReset(ctx, a); err != nil {
		return fmt.Errorf("accounts: send password reset: %w", err)
	}
	return nil
}

const emailTaken = "An account with this email already exists"

// validateLocked checks form against tags and registry state. self is nil on
// create. It returns the role name as stored in the role registry.
func (r *Registry) validateLocked(form Form, self *Account) (string, error) {
	errs := validation.Struct(r.validate, form)
	selfID := ""
	if self != nil {
		selfID = self.ID
	}

	if _, bad := errs["email"]; !bad {
		key := foldEmail(form.Email)
		for _, other := range r.accounts {
			if other.ID != selfID && foldEmail(other.Email) == key {
				errs.Add("email", emailTaken)
				break
			}
		}
	}

	roleName := form.Role
	if _, bad := errs["role"]; !bad {
		if r.roles == nil {
			errs.Add("role", "Roles are not loaded")
		} else if role, ok := r.roles.Lookup(form.Role); ok {
			roleName = role.Name
		} else {
			errs.Add("role", "Select an existing role")
		}
	}

	if _, bad := errs["status"]; !bad && self != nil && !CanTransition(self.Status, form.Status) {
		errs.Add("status", fmt.Sprintf("Cannot change status from %s to %s", self.Status, form.Status))
	}

	if form.LinkedUserID != "" {
		switch {
		case form.AccountType != TypeStaff:
			errs.Add("linkedUserId", "Only staff accounts can link to a user account")
		case form.LinkedUserID == selfID:
			errs.Add("linkedUserId", "An account cannot link to itself")
		default:
			linked := r.indexOf(form.LinkedUserID)
			if linked < 0 || r.accounts[linked].Type != TypeUser {
				errs.Add("linkedUserId", "Linked user account does not exist")
			}
		}
	}
	if self != nil && self.Type == TypeUser && form.AccountType == TypeStaff && r.hasLinksLocked(self.ID) {
		errs.Add("accountType", "Staff accounts link to this user; unlink them first")
	}
	return roleName, errs.Err()
}

func (r *Registry) hasLinksLocked(userID string) bool {
	for _, a := range r.accounts {
		if a.LinkedUserID != nil && *a.LinkedUserID == userID {
			return true
		}
	}
	return false
}

// unlinkLocked clears links to userID. The remote patch is best effort.
func (r *Registry) unlinkLocked(ctx context.Context, userID string) int {
	n := 0
	for i, a := range r.accounts {
		if a.LinkedUserID == nil || *a.LinkedUserID != userID {
			continue
		}
		if err := r.table.Update(ctx, a.ID, store.Patch{"linked_user_id": (*string)(nil)}); err != nil {
			r.logger.Warn("staff unlink kept locally", slog.String("id", a.ID), slog.Any("error", err))
		}
		r.accounts[i].LinkedUserID = nil
		n++
	}
	return n
}

func (r *Registry) outcome(op, id string, remoteErr error) shared.Outcome {
	if remoteErr != nil {
		r.logger.Warn("account "+op+" kept locally", slog.String("id", id), slog.Any("error", remoteErr))
	}
	return shared.OutcomeOf(remoteErr)
}

func (r *Registry) indexOf(id string) int {
	for i, a := range r.accounts {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) record(ctx context.Context, actor shared.Actor, action audit.Action, a Account, outcome shared.Outcome, details map[string]any) {
	if outcome.LocalOnly() {
		details[audit.DetailLocalOnly] = true
	}
	r.trail.Append(ctx, audit.Entry{
		Actor:       actor.EmailRef(),
		Action:      action,
		Entity:      audit.EntityAccount,
		TargetID:    a.ID,
		TargetEmail: a.Email,
		Details:     details,
	})
}

func (a Account) clone() Account {
	a.LinkedUserID = copyRef(a.LinkedUserID)
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		a.LastLoginAt = &t
	}
	return a
}

func foldEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}
