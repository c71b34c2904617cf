package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is an email address that has proven ownership with a code.
type Identity struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	CreatedAt      time.Time  `json:"created_at"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
}
