package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/WmBreck/2nd-opinion-construction/internal/dtos"
	"github.com/WmBreck/2nd-opinion-construction/internal/intake"
	"github.com/WmBreck/2nd-opinion-construction/internal/middleware"
	"github.com/WmBreck/2nd-opinion-construction/internal/services"
	"github.com/WmBreck/2nd-opinion-construction/internal/storage"
	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

// A browser sends one part per file plus a few form fields at most.
const maxMultipartParts = 2*intake.MaxFiles + 4

type IntakeController struct {
	intakeService services.IntakeService
	tokens        *middleware.SessionTokens
	stagingDir    string
}

func NewIntakeController(intakeSvc services.IntakeService, tokens *middleware.SessionTokens, stagingDir string) *IntakeController {
	return &IntakeController{intakeService: intakeSvc, tokens: tokens, stagingDir: stagingDir}
}

var intakeValidate = validator.New()

// ---------------------------------------------------------------------
// Session lifecycle
// ---------------------------------------------------------------------

// StartSessionHandler opens a session at the contact step and returns the
// bearer token that names it.
func (c *IntakeController) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	view := c.intakeService.StartSession(r.Context())

	token, err := c.tokens.Issue(view.SessionID, utils.ClientIP(r))
	if err != nil {
		_ = c.intakeService.Close(r.Context(), view.SessionID)
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeInternal, "Unable to start session", nil, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, dtos.StartSessionResponse{
		Token:     token,
		ExpiresIn: int(c.tokens.TTL().Seconds()),
		Session:   view,
	})
}

func (c *IntakeController) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDOrAbort(w, r)
	if !ok {
		return
	}
	view, err := c.intakeService.View(r.Context(), sessionID)
	respondStep(w, view, err)
}

func (c *IntakeController) ResetHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDOrAbort(w, r)
	if !ok {
		return
	}
	view, err := c.intakeService.Reset(r.Context(), sessionID)
	respondStep(w, view, err)
}

// CloseHandler drops the session and everything queued in it.
func (c *IntakeController) CloseHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDOrAbort(w, r)
	if !ok {
		return
	}
	if err := c.intakeService.Close(r.Context(), sessionID); err != nil {
		respondStep(w, intake.View{}, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------
// contact -> otp -> upload
// ---------------------------------------------------------------------

func (c *IntakeController) SubmitContactHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDOrAbort(w, r)
	if !ok {
		return
	}

	var req dtos.SubmitContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Invalid payload", nil, err)
		return
	}
	if err := intakeValidate.Struct(req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, "One or more fields are too long", nil, err)
		return
	}

	view, err := c.intakeService.SubmitContact(r.Context(), sessionID, req.Payload(), utils.ClientIP(r))
	respondStep(w, view, err)
}

func (c *IntakeController) VerifyCodeHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDOrAbort(w, r)
	if !ok {
		return
	}

	var req dtos.VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Invalid payload", nil, err)
		return
	}
	if err := intakeValidate.Struct(req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, intake.MsgCodeRejected, nil, err)
		return
	}

	view, err := c.intakeService.VerifyCode(r.Context(), sessionID, req.Code)
	respondStep(w, view, err)
}

func (c *IntakeController) ResendCodeHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDOrAbort(w, r)
	if !ok {
		return
	}
	view, err := c.intakeService.ResendCode(r.Context(), sessionID, utils.ClientIP(r))
	respondStep(w, view, err)
}

// ---------------------------------------------------------------------
// Attachments
// ---------------------------------------------------------------------

// AddFilesHandler streams every "files" part of a multipart body to the
// staging dir and offers the batch to the queue. A part larger than the
// per-file cap is cut short and then rejected by the queue by size.
func (c *IntakeController) AddFilesHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDOrAbort(w, r)
	if !ok {
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Expected multipart/form-data", nil, err)
		return
	}

	var cands []intake.Candidate
	abort := func(status int, code, msg string, cause error) {
		for _, cand := range cands {
			_ = cand.Blob.Discard()
		}
		utils.RespondErrorWithCode(w, status, code, msg, nil, cause)
	}

	for parts := 0; ; parts++ {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			abort(http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Malformed multipart body", err)
			return
		}
		if parts >= maxMultipartParts {
			_ = part.Close()
			abort(http.StatusBadRequest, utils.ErrCodeValidation, "Too many parts in upload", nil)
			return
		}
		if part.FormName() != "files" || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		staged, n, err := storage.Stage(part, c.stagingDir, intake.MaxFileSize)
		_ = part.Close()
		if err != nil {
			abort(http.StatusInternalServerError, utils.ErrCodeInternal, "Unable to receive file", err)
			return
		}
		cands = append(cands, intake.Candidate{
			Name:        part.FileName(),
			Size:        n,
			ContentType: part.Header.Get("Content-Type"),
			Blob:        staged,
		})
	}

	if len(cands) == 0 {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, "No files in request", nil)
		return
	}

	view, err := c.intakeService.AddFiles(r.Context(), sessionID, cands)
	respondStep(w, view, err)
}

func (c *IntakeController) RemoveFileHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDOrAbort(w, r)
	if !ok {
		return
	}
	fileID, err := uuid.Parse(mux.Vars(r)["fileID"])
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid file id", nil, err)
		return
	}
	view, err := c.intakeService.RemoveFile(r.Context(), sessionID, fileID)
	respondStep(w, view, err)
}

// UploadHandler stores every outstanding file, records the lead if it does
// not exist yet, and notifies the owner once nothing is left.
func (c *IntakeController) UploadHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDOrAbort(w, r)
	if !ok {
		return
	}
	view, err := c.intakeService.UploadFiles(r.Context(), sessionID)
	respondStep(w, view, err)
}

// ---------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------

func sessionIDOrAbort(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		utils.RespondErrorWithCode(w, http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Missing session", nil)
		return uuid.Nil, false
	}
	return id, true
}

// respondStep writes the session view on success and maps step failures
// to a status. The view rides along in details so the client can render
// field errors and the status line without a second request.
func respondStep(w http.ResponseWriter, view intake.View, err error) {
	if err == nil {
		utils.RespondWithJSON(w, http.StatusOK, dtos.SessionResponse{Session: view})
		return
	}

	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		utils.RespondErrorWithCode(w, http.StatusNotFound, utils.ErrCodeNotFound, "Session not found", nil, err)
		return
	case errors.Is(err, intake.ErrBusy):
		utils.RespondErrorWithCode(w, http.StatusConflict, utils.ErrCodeStepInProgress, "Another step is still in progress", nil, err)
		return
	case errors.Is(err, intake.ErrFileLocked):
		utils.RespondErrorWithCode(w, http.StatusConflict, utils.ErrCodeConflict, "That file can no longer be removed", view, err)
		return
	}

	var se *intake.StepError
	if !errors.As(err, &se) {
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeInternal, "An unexpected error occurred", nil, err)
		return
	}

	switch se.Kind {
	case intake.KindValidation:
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, se.Message, view, err)
	case intake.KindAuth:
		if errors.Is(err, utils.ErrInvalidCode) || se.Err == nil {
			utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidCode, se.Message, view, err)
		} else {
			utils.RespondErrorWithCode(w, http.StatusFailedDependency, utils.ErrCodeExternalServiceFailure, se.Message, view, err)
		}
	case intake.KindCooldown:
		if se.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(se.RetryAfter))
		}
		code := utils.ErrCodeResendCooldown
		if errors.Is(err, utils.ErrRateLimitExceeded) {
			code = utils.ErrCodeRateLimitExceeded
		}
		utils.RespondErrorWithCode(w, http.StatusTooManyRequests, code, se.Message, view, err)
	case intake.KindPersistence:
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodePersistenceFailure, se.Message, view, err)
	case intake.KindStorage:
		// Partial upload: the queue in the view says which files to retry.
		utils.Logger.WithError(err).Warn("Upload incomplete")
		utils.RespondWithJSON(w, http.StatusOK, dtos.SessionResponse{Session: view})
	case intake.KindState:
		utils.RespondErrorWithCode(w, http.StatusConflict, utils.ErrCodeWrongStep, se.Message, view, err)
	default:
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeInternal, se.Message, view, err)
	}
}
