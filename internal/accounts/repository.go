package accounts

import (
	"fmt"

	"github.com/agrimart/backoffice/internal/store"
)

func toRow(a Account) store.AccountRow {
	return store.AccountRow{
		ID:           a.ID,
		Name:         a.Name,
		Email:        a.Email,
		Role:         a.Role,
		Status:       string(a.Status),
		Branch:       a.Branch,
		AccountType:  string(a.Type),
		LinkedUserID: copyRef(a.LinkedUserID),
		CreatedAt:    a.CreatedAt,
		LastLoginAt:  a.LastLoginAt,
	}
}

func fromRow(row store.AccountRow) (Account, error) {
	if row.ID == "" {
		return Account{}, fmt.Errorf("accounts: row without id")
	}
	status, ok := ParseStatus(row.Status)
	if !ok {
		return Account{}, fmt.Errorf("accounts: row %s has unknown status %q", row.ID, row.Status)
	}
	typ, ok := ParseType(row.AccountType)
	if !ok {
		return Account{}, fmt.Errorf("accounts: row %s has unknown account type %q", row.ID, row.AccountType)
	}
	a := Account{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		Role:         row.Role,
		Status:       status,
		Branch:       row.Branch,
		Type:         typ,
		LinkedUserID: copyRef(row.LinkedUserID),
		CreatedAt:    row.CreatedAt.UTC(),
	}
	if row.LastLoginAt != nil {
		t := row.LastLoginAt.UTC()
		a.LastLoginAt = &t
	}
	return a, nil
}

func diff(before, after Account) store.Patch {
	patch := store.Patch{}
	if before.Name != after.Name {
		patch["name"] = after.Name
	}
	if before.Email != after.Email {
		patch["email"] = after.Email
	}
	if before.Role != after.Role {
		patch["role"] = after.Role
	}
	if before.Status != after.Status {
		patch["status"] = string(after.Status)
	}
	if before.Branch != after.Branch {
		patch["branch"] = after.Branch
	}
	if before.Type != after.Type {
		patch["account_type"] = string(after.Type)
	}
	if deref(before.LinkedUserID) != deref(after.LinkedUserID) {
		patch["linked_user_id"] = copyRef(after.LinkedUserID)
	}
	return patch
}

func copyRef(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
