package entity

import (
	"time"

	"github.com/google/uuid"
)

// Actor is the authenticated caller resolved from a bearer credential.
type Actor struct {
	ID        uuid.UUID
	Role      string
	ExpiresAt time.Time
}

// IsExpired reports whether the credential behind the actor is no longer valid.
// An actor without an expiry is treated as expired.
func (a Actor) IsExpired(now time.Time) bool {
	if a.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(a.ExpiresAt)
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) IsDoctor() bool {
	return a.Role == RoleDoctor
}

func (a Actor) IsPatient() bool {
	return a.Role == RolePatient
}
