package models

import (
	"time"

	"github.com/google/uuid"
)

// Upload records a file already written to the bids bucket.
type Upload struct {
	ID         uuid.UUID `json:"id"`
	IdentityID uuid.UUID `json:"identity_id"`
	LeadID     uuid.UUID `json:"lead_id"`
	FilePath   string    `json:"file_path"`
	FileName   string    `json:"file_name"`
	FileType   *string   `json:"file_type,omitempty"`
	FileSize   int64     `json:"file_size"`
	CreatedAt  time.Time `json:"created_at"`
}
