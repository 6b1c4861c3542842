package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// AccountRow is the remote shape of an account.
type AccountRow struct {
	ID           string     `db:"id"`
	Name         string     `db:"name"`
	Email        string     `db:"email"`
	Role         string     `db:"role"`
	Status       string     `db:"status"`
	Branch       string     `db:"branch"`
	AccountType  string     `db:"account_type"`
	LinkedUserID *string    `db:"linked_user_id"`
	CreatedAt    time.Time  `db:"created_at"`
	LastLoginAt  *time.Time `db:"last_login_at"`
}

// RoleRow is the remote shape of a role. Permissions holds the JSON encoded
// matrix ({module: [actions]}).
type RoleRow struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Scope       string          `db:"scope"`
	Permissions json.RawMessage `db:"permissions"`
	CreatedAt   time.Time       `db:"created_at"`
}

// AccountSchema maps AccountRow onto the accounts table.
func AccountSchema() Schema[AccountRow] {
	return Schema[AccountRow]{
		Table:    "accounts",
		Key:      "id",
		Columns:  []string{"id", "name", "email", "role", "status", "branch", "account_type", "linked_user_id", "created_at", "last_login_at"},
		Mutable:  []string{"name", "email", "role", "status", "branch", "account_type", "linked_user_id"},
		OrderBy:  "created_at, id",
		Touching: "updated_at",
		Values: func(r AccountRow) []any {
			return []any{r.ID, r.Name, r.Email, r.Role, r.Status, r.Branch, r.AccountType, r.LinkedUserID, r.CreatedAt, r.LastLoginAt}
		},
	}
}

// RoleSchema maps RoleRow onto the roles table.
func RoleSchema() Schema[RoleRow] {
	return Schema[RoleRow]{
		Table:    "roles",
		Key:      "id",
		Columns:  []string{"id", "name", "description", "scope", "permissions", "created_at"},
		Mutable:  []string{"name", "description", "scope", "permissions"},
		OrderBy:  "created_at, id",
		Touching: "updated_at",
		Values: func(r RoleRow) []any {
			return []any{r.ID, r.Name, r.Description, r.Scope, r.Permissions, r.CreatedAt}
		},
	}
}

// RowID implements Record.
func (r AccountRow) RowID() string { return r.ID }

// WithID implements Record.
func (r AccountRow) WithID(id string) AccountRow {
	r.ID = id
	return r
}

// Apply implements Record.
func (r AccountRow) Apply(patch Patch) (AccountRow, error) {
	for col, value := range patch {
		var err error
		switch col {
		case "name":
			r.Name, err = asString(col, value)
		case "email":
			r.Email, err = asString(col, value)
		case "role":
			r.Role, err = asString(col, value)
		case "status":
			r.Status, err = asString(col, value)
		case "branch":
			r.Branch, err = asString(col, value)
		case "account_type":
			r.AccountType, err = asString(col, value)
		case "linked_user_id":
			r.LinkedUserID, err = asOptionalString(col, value)
		default:
			err = fmt.Errorf("%w: accounts.%s", ErrUnknownColumn, col)
		}
		if err != nil {
			return AccountRow{}, err
		}
	}
	return r, nil
}

// RowID implements Record.
func (r RoleRow) RowID() string { return r.ID }

// WithID implements Record.
func (r RoleRow) WithID(id string) RoleRow {
	r.ID = id
	return r
}

// Apply implements Record.
func (r RoleRow) Apply(patch Patch) (RoleRow, error) {
	for col, value := range patch {
		var err error
		switch col {
		case "name":
			r.Name, err = asString(col, value)
		case "description":
			r.Description, err = asString(col, value)
		case "scope":
			r.Scope, err = asString(col, value)
		case "permissions":
			raw, ok := value.(json.RawMessage)
			if !ok {
				err = fmt.Errorf("store: permissions expects json.RawMessage, got %T", value)
			}
			r.Permissions = raw
		default:
			err = fmt.Errorf("%w: roles.%s", ErrUnknownColumn, col)
		}
		if err != nil {
			return RoleRow{}, err
		}
	}
	return r, nil
}

func asString(col string, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("store: %s expects string, got %T", col, value)
	}
	return s, nil
}

func asOptionalString(col string, value any) (*string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *string:
		return v, nil
	case string:
		return &v, nil
	default:
		return nil, fmt.Errorf("store: %s expects *string, got %T", col, value)
	}
}
