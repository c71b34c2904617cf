package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/WmBreck/2nd-opinion-construction/internal/config"
	"github.com/WmBreck/2nd-opinion-construction/internal/dtos"
	"github.com/WmBreck/2nd-opinion-construction/internal/repositories"
	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

// URLSigner issues time-limited download links for stored objects.
type URLSigner interface {
	SignDownloadURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
}

// NotificationService emails the business owner about a new lead.
type NotificationService interface {
	NotifyNewLead(ctx context.Context, req dtos.NotifyLeadRequest) error
}

type notificationService struct {
	cfg     *config.Config
	leads   repositories.LeadRepository
	uploads repositories.UploadRepository
	signer  URLSigner
	mailer  Mailer
}

func NewNotificationService(
	cfg *config.Config,
	leads repositories.LeadRepository,
	uploads repositories.UploadRepository,
	signer URLSigner,
	mailer Mailer,
) NotificationService {
	return &notificationService{cfg: cfg, leads: leads, uploads: uploads, signer: signer, mailer: mailer}
}

// NotifyNewLead returns a *utils.AppError carrying the HTTP status for
// every failure: 400 bad id, 404 unknown lead, 500 uploads unreadable,
// 502 email not accepted. A link that cannot be signed is listed as
// unavailable and does not fail the call.
func (s *notificationService) NotifyNewLead(ctx context.Context, req dtos.NotifyLeadRequest) error {
	leadID, err := uuid.Parse(req.LeadID)
	if err != nil {
		return &utils.AppError{
			StatusCode: http.StatusBadRequest,
			Code:       utils.ErrCodeValidation,
			Message:    "lead_id is required",
			Err:        err,
		}
	}
	log := utils.Logger.WithField("lead_id", leadID)

	lead, err := s.leads.GetByID(ctx, leadID)
	if err == nil && lead == nil {
		err = utils.ErrLeadNotFound
	}
	if err != nil {
		return &utils.AppError{
			StatusCode: http.StatusNotFound,
			Code:       utils.ErrCodeNotFound,
			Message:    "Lead not found",
			Err:        err,
		}
	}

	uploads, err := s.uploads.ListByLeadID(ctx, leadID)
	if err != nil {
		return &utils.AppError{
			StatusCode: http.StatusInternalServerError,
			Code:       utils.ErrCodeInternal,
			Message:    "Unable to fetch uploads",
			Err:        err,
		}
	}

	files := make([]LinkedFile, 0, len(uploads))
	for _, u := range uploads {
		f := LinkedFile{Name: u.FileName, Type: u.FileType, Size: u.FileSize}
		url, signErr := s.signer.SignDownloadURL(ctx, u.FilePath, s.cfg.SignedURLTTL)
		if signErr != nil {
			log.WithError(signErr).WithField("upload_id", u.ID).Warn("Failed to sign download URL")
		} else {
			f.URL = url
		}
		files = append(files, f)
	}

	email := ComposeLeadEmail(s.cfg.BusinessName, lead, files)
	err = s.mailer.Send(ctx, Message{
		From:    s.cfg.MailFrom,
		To:      s.cfg.MailTo,
		Subject: email.Subject,
		Text:    email.Text,
		HTML:    email.HTML,
	})
	if err != nil {
		if !errors.Is(err, utils.ErrExternalServiceFailure) {
			log.WithError(err).Error("Notification email rejected before dispatch")
		}
		return &utils.AppError{
			StatusCode: http.StatusBadGateway,
			Code:       utils.ErrCodeExternalServiceFailure,
			Message:    "Email dispatch failed",
			Err:        err,
		}
	}

	log.WithField("files", len(files)).Info("notify_sent")
	return nil
}
