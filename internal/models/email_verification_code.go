package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailVerificationCode for email_verification_codes table
type EmailVerificationCode struct {
	ID               uuid.UUID
	Email            string
	VerificationCode string
	ExpiresAt        time.Time
	Attempts         int
	Verified         bool
	VerifiedAt       *time.Time
	CreatedAt        time.Time
}
