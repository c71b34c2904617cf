package models

import (
	"time"

	"github.com/google/uuid"
)

const LeadStatusNew = "new"

// Lead is one intake submission, owned by the identity that verified it.
type Lead struct {
	ID          uuid.UUID `json:"id"`
	IdentityID  uuid.UUID `json:"identity_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	City        *string   `json:"city,omitempty"`
	Zip         *string   `json:"zip,omitempty"`
	Reason      string    `json:"reason"`
	ProjectType *string   `json:"project_type,omitempty"`
	BudgetRange *string   `json:"budget_range,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	Consent     bool      `json:"consent"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
