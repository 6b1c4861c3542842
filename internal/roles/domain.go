package roles

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/agrimart/backoffice/internal/platform/httpx"
	"github.com/agrimart/backoffice/internal/rbac"
)

// Scope tells whether a role applies system-wide or within one branch.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeBranch Scope = "branch"
)

// AdminRoleName is the role name protected by the last-admin guard.
const AdminRoleName = "Admin"

var (
	// ErrNotFound indicates the role id does not resolve.
	ErrNotFound = fmt.Errorf("role not found: %w", httpx.ErrNotFound)
	// ErrLastAdminGuard rejects mutations that would leave no global Admin role.
	ErrLastAdminGuard = fmt.Errorf("at least one global %q role must remain; create or keep another global Admin role first: %w", AdminRoleName, httpx.ErrConflict)
	// ErrRoleInUse rejects renaming or deleting a role that accounts still reference.
	ErrRoleInUse = fmt.Errorf("reassign those accounts to another role first: %w", httpx.ErrConflict)
)

// IsLastAdminGuard reports whether err is a last-admin rejection.
func IsLastAdminGuard(err error) bool {
	return errors.Is(err, ErrLastAdminGuard)
}

// ParseScope resolves a scope key.
func ParseScope(raw string) (Scope, bool) {
	s := Scope(strings.ToLower(strings.TrimSpace(raw)))
	return s, s == ScopeGlobal || s == ScopeBranch
}

// Role is a named, scoped bundle of module/action permissions.
type Role struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Scope       Scope       `json:"scope"`
	Permissions rbac.Matrix `json:"permissions"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// IsGlobalAdmin reports whether the role counts towards the last-admin guard.
func (r Role) IsGlobalAdmin() bool {
	return SameName(r.Name, AdminRoleName) && r.Scope == ScopeGlobal
}

// Form is the create/update payload for a role.
type Form struct {
	Name        string      `json:"name" validate:"required,max=64"`
	Description string      `json:"description" validate:"max=280"`
	Scope       Scope       `json:"scope" validate:"required,oneof=global branch"`
	Permissions rbac.Matrix `json:"permissions" validate:"-"`
}

func (f Form) normalized() Form {
	f.Name = strings.TrimSpace(f.Name)
	f.Description = strings.TrimSpace(f.Description)
	f.Scope = Scope(strings.ToLower(strings.TrimSpace(string(f.Scope))))
	return f
}

// SameName compares role names case-insensitively.
func SameName(a, b string) bool {
	return foldName(a) == foldName(b)
}

func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
