package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agrimart/backoffice/internal/platform/httpx"
	"github.com/agrimart/backoffice/internal/roles"
)

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusPending   Status = "pending"
)

// Type distinguishes login accounts from staff records.
type Type string

const (
	TypeUser  Type = "user"
	TypeStaff Type = "staff"
)

var (
	// ErrNotFound indicates the account id does not resolve.
	ErrNotFound = fmt.Errorf("account not found: %w", httpx.ErrNotFound)
	// ErrInvalidTransition rejects a status change the state machine forbids.
	ErrInvalidTransition = fmt.Errorf("status change not allowed: %w", httpx.ErrConflict)
	// ErrNotPending rejects resending verification to a verified account.
	ErrNotPending = fmt.Errorf("verification can only be resent to pending accounts: %w", httpx.ErrConflict)
	// ErrNotifierUnavailable means no e-mail collaborator is configured.
	ErrNotifierUnavailable = fmt.Errorf("e-mail notifications are not configured: %w", httpx.ErrConflict)
)

// ParseStatus resolves a status key.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusPending:
		return s, true
	}
	return s, false
}

// ParseType resolves an account type key.
func ParseType(raw string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	return t, t == TypeUser || t == TypeStaff
}

// Account is a user or staff identity with a role, status and branch.
type Account struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	Status       Status     `json:"status"`
	Branch       string     `json:"branch"`
	Type         Type       `json:"accountType"`
	LinkedUserID *string    `json:"linkedUserId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// Form is the create/update payload for an account.
type Form struct {
	Name         string `json:"name" validate:"required,max=120"`
	Email        string `json:"email" validate:"required,email"`
	Role         string `json:"role" validate:"required"`
	Status       Status `json:"status" validate:"required,oneof=active inactive suspended pending"`
	Branch       string `json:"branch" validate:"required"`
	AccountType  Type   `json:"accountType" validate:"omitempty,oneof=user staff"`
	LinkedUserID string `json:"linkedUserId"`
}

func (f Form) normalized() Form {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.TrimSpace(f.Email)
	f.Role = strings.TrimSpace(f.Role)
	f.Status = Status(strings.ToLower(strings.TrimSpace(string(f.Status))))
	f.Branch = strings.TrimSpace(f.Branch)
	f.AccountType = Type(strings.ToLower(strings.TrimSpace(string(f.AccountType))))
	if f.AccountType == "" {
		f.AccountType = TypeUser
	}
	f.LinkedUserID = strings.TrimSpace(f.LinkedUserID)
	return f
}

// RoleLookup resolves role names for assignment.
type RoleLookup interface {
	Lookup(name string) (roles.Role, bool)
}

// Notifier delivers account e-mails. Delivery is fire-and-forget: a failure
// is reported to the caller and never changes account state.
type Notifier interface {
	ResendVerification(ctx context.Context, account Account) error
	SendPasswordReset(ctx context.Context, account Account) error
}
