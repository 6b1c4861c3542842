package shared

import "strings"

// Actor identifies who performs a governance operation. The zero value is the
// system actor, used for bootstrap and background work.
type Actor struct {
	AccountID string
	Email     string
}

// SystemActor returns the actor used for system-initiated changes.
func SystemActor() Actor {
	return Actor{}
}

// NewActor builds an actor for an authenticated account.
func NewActor(accountID, email string) Actor {
	return Actor{AccountID: strings.TrimSpace(accountID), Email: strings.TrimSpace(email)}
}

// IsSystem reports whether no authenticated account is attached.
func (a Actor) IsSystem() bool {
	return a.Email == ""
}

// EmailRef returns the actor email for audit attribution, nil for the system.
func (a Actor) EmailRef() *string {
	if a.IsSystem() {
		return nil
	}
	email := a.Email
	return &email
}
