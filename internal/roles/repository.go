package roles

import (
	"encoding/json"
	"fmt"

	"github.com/agrimart/backoffice/internal/store"
)

func toRow(r Role) (store.RoleRow, error) {
	perms, err := json.Marshal(r.Permissions)
	if err != nil {
		return store.RoleRow{}, fmt.Errorf("roles: encode permissions: %w", err)
	}
	return store.RoleRow{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Scope:       string(r.Scope),
		Permissions: perms,
		CreatedAt:   r.CreatedAt,
	}, nil
}

func fromRow(row store.RoleRow) (Role, error) {
	if row.ID == "" {
		return Role{}, fmt.Errorf("roles: row without id")
	}
	scope, ok := ParseScope(row.Scope)
	if !ok {
		return Role{}, fmt.Errorf("roles: row %s has unknown scope %q", row.ID, row.Scope)
	}
	role := Role{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Scope:       scope,
		CreatedAt:   row.CreatedAt.UTC(),
	}
	if len(row.Permissions) > 0 {
		if err := json.Unmarshal(row.Permissions, &role.Permissions); err != nil {
			return Role{}, fmt.Errorf("roles: row %s: %w", row.ID, err)
		}
	}
	return role, nil
}

// diff builds the store patch turning before into after.
func diff(before, after Role) (store.Patch, error) {
	patch := store.Patch{}
	if before.Name != after.Name {
		patch["name"] = after.Name
	}
	if before.Description != after.Description {
		patch["description"] = after.Description
	}
	if before.Scope != after.Scope {
		patch["scope"] = string(after.Scope)
	}
	if before.Permissions != after.Permissions {
		perms, err := json.Marshal(after.Permissions)
		if err != nil {
			return nil, fmt.Errorf("roles: encode permissions: %w", err)
		}
		patch["permissions"] = json.RawMessage(perms)
	}
	return patch, nil
}
