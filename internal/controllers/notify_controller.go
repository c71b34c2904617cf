package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/WmBreck/2nd-opinion-construction/internal/dtos"
	"github.com/WmBreck/2nd-opinion-construction/internal/services"
	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

type NotifyController struct {
	notifyService services.NotificationService
}

func NewNotifyController(notify services.NotificationService) *NotifyController {
	return &NotifyController{notifyService: notify}
}

var notifyValidate = validator.New()

// NotifyNewLeadHandler emails the owner a summary of one lead and signed
// links to its uploads.
func (c *NotifyController) NotifyNewLeadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, r)
		return
	}

	var req dtos.NotifyLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Invalid JSON body", nil, err)
		return
	}
	if err := notifyValidate.Struct(req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, "lead_id is required", nil, err)
		return
	}

	if err := c.notifyService.NotifyNewLead(r.Context(), req); err != nil {
		utils.HandleAppError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.NotifyLeadResponse{Success: true})
}

// MethodNotAllowed is installed as the router's 405 handler so the body
// matches every other error.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	utils.RespondErrorWithCode(w, http.StatusMethodNotAllowed, utils.ErrCodeMethodNotAllowed, "Method Not Allowed", nil)
}
