package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/agrimart/backoffice/internal/accounts"
	"github.com/agrimart/backoffice/internal/shared"
)

// MinPasswordLength is enforced when a password is set.
const MinPasswordLength = 8

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials. Only active accounts may
// sign in; every failure reports ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Credential, error) {
	cred, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if cred.Status != string(accounts.StatusActive) || cred.PasswordHash == "" {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return cred, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id, accountID string, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, SessionRecord{ID: id, AccountID: accountID, ExpiresAt: expiresAt, IP: ip, UserAgent: ua})
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// SetPassword hashes and stores a new password for an account.
func (s *Service) SetPassword(ctx context.Context, accountID, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.repo.SetPassword(ctx, accountID, hash)
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(strings.TrimSpace(password)) < MinPasswordLength {
		return "", fmt.Errorf("auth: password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}
