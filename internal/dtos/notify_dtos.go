package dtos

type NotifyLeadRequest struct {
	LeadID string `json:"lead_id" validate:"required,uuid"`
}

type NotifyLeadResponse struct {
	Success bool `json:"success"`
}
