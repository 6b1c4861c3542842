package auth

import "time"

// Credential is the login view of an account row.
type Credential struct {
	AccountID    string
	Email        string
	PasswordHash string
	Status       string
}

// SessionRecord is the durable trace of a sign-in.
type SessionRecord struct {
	ID        string
	AccountID string
	ExpiresAt time.Time
	IP        string
	UserAgent string
}
