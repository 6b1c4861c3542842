package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agrimart/backoffice/internal/accounts"
	"github.com/agrimart/backoffice/internal/governance"
	"github.com/agrimart/backoffice/internal/roles"
	"github.com/agrimart/backoffice/internal/shared"
)

type passwordSetter interface {
	SetPassword(ctx context.Context, accountID, password string) error
}

// bootstrapAdmin creates the first administrator account when none with the
// configured e-mail exists. An existing account is left untouched.
func bootstrapAdmin(ctx context.Context, facade *governance.Facade, passwords passwordSetter, email, password string, logger *slog.Logger) error {
	if email == "" {
		return nil
	}
	if _, ok := facade.AccountByEmail(email); ok {
		logger.Info("bootstrap admin already present", slog.String("email", email))
		return nil
	}
	account, outcome, err := facade.CreateAccount(ctx, shared.SystemActor(), accounts.Form{
		Name:        "Administrator",
		Email:       email,
		Role:        roles.AdminRoleName,
		Status:      accounts.StatusActive,
		Branch:      "HQ",
		AccountType: accounts.TypeUser,
	})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if outcome.LocalOnly() {
		return fmt.Errorf("bootstrap admin: account %s was not persisted", account.ID)
	}
	if err := passwords.SetPassword(ctx, account.ID, password); err != nil {
		return fmt.Errorf("bootstrap admin: set password: %w", err)
	}
	logger.Info("bootstrap admin created", slog.String("account_id", account.ID))
	return nil
}
