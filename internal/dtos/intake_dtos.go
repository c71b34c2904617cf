package dtos

import "github.com/WmBreck/2nd-opinion-construction/internal/intake"

// ----------------------
// Sessions
// ----------------------

type StartSessionResponse struct {
	Token     string      `json:"token"`
	ExpiresIn int         `json:"expires_in"`
	Session   intake.View `json:"session"`
}

type SessionResponse struct {
	Session intake.View `json:"session"`
}

// ----------------------
// Steps
// ----------------------

// SubmitContactRequest is decoded then handed to the session, which
// produces the field-level messages; only length caps are checked here.
type SubmitContactRequest struct {
	Name        string `json:"name" validate:"max=200"`
	Email       string `json:"email" validate:"max=320"`
	Phone       string `json:"phone" validate:"max=40"`
	City        string `json:"city" validate:"max=120"`
	Zip         string `json:"zip" validate:"max=20"`
	Reason      string `json:"reason" validate:"max=2000"`
	ProjectType string `json:"project_type" validate:"max=120"`
	BudgetRange string `json:"budget_range" validate:"max=120"`
	Notes       string `json:"notes" validate:"max=5000"`
	Consent     bool   `json:"consent"`
}

func (r SubmitContactRequest) Payload() intake.ContactPayload {
	return intake.ContactPayload{
		Name:        r.Name,
		Email:       r.Email,
		Phone:       r.Phone,
		City:        r.City,
		Zip:         r.Zip,
		Reason:      r.Reason,
		ProjectType: r.ProjectType,
		BudgetRange: r.BudgetRange,
		Notes:       r.Notes,
		Consent:     r.Consent,
	}
}

type VerifyCodeRequest struct {
	Code string `json:"code" validate:"max=16"`
}
