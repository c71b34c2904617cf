package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/WmBreck/2nd-opinion-construction/internal/config"
	"github.com/WmBreck/2nd-opinion-construction/internal/dtos"
	"github.com/WmBreck/2nd-opinion-construction/internal/intake"
	"github.com/WmBreck/2nd-opinion-construction/internal/models"
	"github.com/WmBreck/2nd-opinion-construction/internal/repositories"
	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

var ErrSessionNotFound = errors.New("intake session not found")

// BlobStore writes an object once; an existing path is an error.
type BlobStore interface {
	Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) (string, error)
}

// PhoneChecker reports whether a submitted phone number is reachable.
type PhoneChecker func(ctx context.Context, phone string) (bool, error)

// IntakeService drives intake sessions through contact, otp, upload and
// success. Every call that talks to the network holds the session's
// single-flight lock; a second call meanwhile fails with intake.ErrBusy.
// Reset and Close are never refused.
type IntakeService interface {
	StartSession(ctx context.Context) intake.View
	View(ctx context.Context, sessionID uuid.UUID) (intake.View, error)
	SubmitContact(ctx context.Context, sessionID uuid.UUID, p intake.ContactPayload, clientIP string) (intake.View, error)
	ResendCode(ctx context.Context, sessionID uuid.UUID, clientIP string) (intake.View, error)
	VerifyCode(ctx context.Context, sessionID uuid.UUID, code string) (intake.View, error)
	AddFiles(ctx context.Context, sessionID uuid.UUID, cands []intake.Candidate) (intake.View, error)
	RemoveFile(ctx context.Context, sessionID, fileID uuid.UUID) (intake.View, error)
	UploadFiles(ctx context.Context, sessionID uuid.UUID) (intake.View, error)
	Reset(ctx context.Context, sessionID uuid.UUID) (intake.View, error)
	Close(ctx context.Context, sessionID uuid.UUID) error
	SweepIdle(ctx context.Context) int
}

type intakeService struct {
	cfg        *config.Config
	registry   *SessionRegistry
	verifier   VerificationService
	leads      repositories.LeadRepository
	uploads    repositories.UploadRepository
	store      BlobStore
	notifier   NotificationService
	checkPhone PhoneChecker
	now        func() time.Time
}

func NewIntakeService(
	cfg *config.Config,
	registry *SessionRegistry,
	verifier VerificationService,
	leads repositories.LeadRepository,
	uploads repositories.UploadRepository,
	store BlobStore,
	notifier NotificationService,
	checkPhone PhoneChecker,
) IntakeService {
	return &intakeService{
		cfg:        cfg,
		registry:   registry,
		verifier:   verifier,
		leads:      leads,
		uploads:    uploads,
		store:      store,
		notifier:   notifier,
		checkPhone: checkPhone,
		now:        time.Now,
	}
}

func (s *intakeService) options() intake.Options {
	return intake.Options{
		EagerLeadCreation:     s.cfg.LDFlag_EagerLeadCreation,
		AllowEarlyAttachments: s.cfg.LDFlag_AllowEarlyAttachments,
		ResendCooldown:        s.cfg.ResendCooldown,
	}
}

// ---------------------------------------------------------------------
// Session lifecycle
// ---------------------------------------------------------------------

func (s *intakeService) StartSession(ctx context.Context) intake.View {
	now := s.now()
	sess := s.registry.Create(s.options(), now)
	utils.Logger.WithField("session_id", sess.ID).Debug("Intake session opened")
	return sess.View(now)
}

func (s *intakeService) View(ctx context.Context, sessionID uuid.UUID) (intake.View, error) {
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return intake.View{}, ErrSessionNotFound
	}
	return sess.View(s.now()), nil
}

// acquire returns the session with its flight lock held.
func (s *intakeService) acquire(sessionID uuid.UUID) (*intake.Session, error) {
	sess, err := s.registry.Acquire(sessionID)
	if err != nil {
		return nil, err
	}
	sess.Touch(s.now())
	return sess, nil
}

// Reset works from any step. With an upload in flight the session shows
// the empty contact step at once and is cleared when the upload returns.
func (s *intakeService) Reset(ctx context.Context, sessionID uuid.UUID) (intake.View, error) {
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return intake.View{}, ErrSessionNotFound
	}
	sess.Touch(s.now())
	sess.ResetWhenIdle()
	return sess.View(s.now()), nil
}

// Close abandons the session without waiting on a step in flight. Writes
// that step already issued may still land.
func (s *intakeService) Close(ctx context.Context, sessionID uuid.UUID) error {
	if !s.registry.Remove(sessionID) {
		return ErrSessionNotFound
	}
	utils.Logger.WithField("session_id", sessionID).Debug("Intake session closed")
	return nil
}

func (s *intakeService) SweepIdle(ctx context.Context) int {
	n := s.registry.SweepIdle(s.now(), s.cfg.SessionTTL)
	if n > 0 {
		utils.Logger.WithField("sessions", n).Info("Swept idle intake sessions")
	}
	return n
}

// ---------------------------------------------------------------------
// contact -> otp
// ---------------------------------------------------------------------

func (s *intakeService) SubmitContact(ctx context.Context, sessionID uuid.UUID, p intake.ContactPayload, clientIP string) (intake.View, error) {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return intake.View{}, err
	}
	defer sess.Release()

	contact, err := sess.PrepareContact(p)
	if err != nil {
		return sess.View(s.now()), err
	}
	log := utils.Logger.WithFields(logrus.Fields{
		"session_id":   sess.ID,
		"email_domain": utils.EmailDomain(contact.Email),
	})

	if s.checkPhone != nil {
		ok, err := s.checkPhone(ctx, contact.Phone)
		switch {
		case err != nil:
			log.WithError(err).Warn("Phone lookup failed; accepting number as entered")
		case !ok:
			return s.viewAfter(sess, sess.RejectFields(intake.FieldErrors{"phone": intake.MsgPhoneInvalid}))
		}
	}

	if err := s.verifier.RequestCode(ctx, contact.Email, clientIP, true); err != nil {
		return s.viewAfter(sess, s.codeSendFailure(sess, log, err, intake.MsgCodeSendFailed))
	}

	sess.CodeSent(contact, s.now())
	log.Info("otp_sent")
	return sess.View(s.now()), nil
}

func (s *intakeService) ResendCode(ctx context.Context, sessionID uuid.UUID, clientIP string) (intake.View, error) {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return intake.View{}, err
	}
	defer sess.Release()

	email, err := sess.PrepareResend(s.now())
	if err != nil {
		return sess.View(s.now()), err
	}
	log := utils.Logger.WithFields(logrus.Fields{
		"session_id":   sess.ID,
		"email_domain": utils.EmailDomain(email),
	})

	if err := s.verifier.RequestCode(ctx, email, clientIP, true); err != nil {
		return s.viewAfter(sess, s.codeSendFailure(sess, log, err, intake.MsgCodeResendFailed))
	}

	sess.CodeResent(s.now())
	log.Info("otp_sent")
	return sess.View(s.now()), nil
}

func (s *intakeService) codeSendFailure(sess *intake.Session, log *logrus.Entry, err error, msg string) error {
	switch {
	case errors.Is(err, utils.ErrInvalidEmail):
		return sess.RejectFields(intake.FieldErrors{"email": intake.MsgEmailBounces})
	case errors.Is(err, utils.ErrRateLimitExceeded):
		return sess.Fail(intake.KindCooldown, intake.MsgTooManyRequests, err)
	}
	log.WithError(err).Error("Failed to send verification code")
	return sess.Fail(intake.KindAuth, msg, err)
}

// ---------------------------------------------------------------------
// otp -> upload
// ---------------------------------------------------------------------

func (s *intakeService) VerifyCode(ctx context.Context, sessionID uuid.UUID, code string) (intake.View, error) {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return intake.View{}, err
	}
	defer sess.Release()

	contact, needsCheck, err := sess.PrepareVerify(code)
	if err != nil {
		return sess.View(s.now()), err
	}
	log := utils.Logger.WithFields(logrus.Fields{
		"session_id":   sess.ID,
		"email_domain": utils.EmailDomain(contact.Email),
	})

	if needsCheck {
		identity, err := s.verifier.VerifyCode(ctx, contact.Email, strings.TrimSpace(code), true)
		if err != nil {
			if errors.Is(err, utils.ErrInvalidCode) {
				return s.viewAfter(sess, sess.Fail(intake.KindAuth, intake.MsgCodeRejected, err))
			}
			log.WithError(err).Error("Failed to verify code")
			return s.viewAfter(sess, sess.Fail(intake.KindAuth, intake.MsgVerifyFailed, err))
		}
		sess.Verified(*identity)
	}

	if !sess.Options().EagerLeadCreation {
		sess.EnterUpload()
		return sess.View(s.now()), nil
	}

	identity, _ := sess.Identity()
	leadID, err := s.createLead(ctx, identity, contact)
	if err != nil {
		log.WithError(err).Error("Failed to save lead")
		return s.viewAfter(sess, sess.Fail(intake.KindPersistence, intake.MsgLeadSaveFailed, err))
	}
	sess.LeadCreated(leadID)
	log.WithField("lead_id", leadID).Info("lead_created")
	return sess.View(s.now()), nil
}

func (s *intakeService) createLead(ctx context.Context, identity intake.Identity, c intake.ContactPayload) (uuid.UUID, error) {
	lead := &models.Lead{
		IdentityID:  identity.ID,
		Name:        c.Name,
		Email:       c.Email,
		Phone:       c.Phone,
		City:        utils.NilIfEmpty(c.City),
		Zip:         utils.NilIfEmpty(c.Zip),
		Reason:      c.Reason,
		ProjectType: utils.NilIfEmpty(c.ProjectType),
		BudgetRange: utils.NilIfEmpty(c.BudgetRange),
		Notes:       utils.NilIfEmpty(c.Notes),
		Consent:     c.Consent,
		Status:      models.LeadStatusNew,
	}
	if err := s.leads.Create(ctx, lead); err != nil {
		return uuid.Nil, err
	}
	return lead.ID, nil
}

// ---------------------------------------------------------------------
// queue
// ---------------------------------------------------------------------

func (s *intakeService) AddFiles(ctx context.Context, sessionID uuid.UUID, cands []intake.Candidate) (intake.View, error) {
	sess, err := s.acquire(sessionID)
	if err != nil {
		discardCandidates(cands)
		return intake.View{}, err
	}
	defer sess.Release()

	rejected, err := sess.AddFiles(cands)
	if len(rejected) > 0 {
		utils.Logger.WithFields(logrus.Fields{
			"session_id": sess.ID,
			"rejected":   len(rejected),
		}).Debug("Some attachments were rejected")
	}
	return sess.View(s.now()), err
}

func discardCandidates(cands []intake.Candidate) {
	for _, c := range cands {
		if c.Blob != nil {
			_ = c.Blob.Discard()
		}
	}
}

func (s *intakeService) RemoveFile(ctx context.Context, sessionID, fileID uuid.UUID) (intake.View, error) {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return intake.View{}, err
	}
	defer sess.Release()

	if _, err := sess.RemoveFile(fileID); err != nil {
		return sess.View(s.now()), err
	}
	return sess.View(s.now()), nil
}

// ---------------------------------------------------------------------
// upload -> success
// ---------------------------------------------------------------------

func (s *intakeService) UploadFiles(ctx context.Context, sessionID uuid.UUID) (intake.View, error) {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return intake.View{}, err
	}
	defer sess.Release()

	plan, err := sess.PrepareUpload()
	if err != nil {
		return sess.View(s.now()), err
	}
	log := utils.Logger.WithFields(logrus.Fields{
		"session_id":   sess.ID,
		"email_domain": utils.EmailDomain(plan.Contact.Email),
	})

	var leadID uuid.UUID
	if plan.LeadID != nil {
		leadID = *plan.LeadID
	} else {
		leadID, err = s.createLead(ctx, plan.Identity, plan.Contact)
		if err != nil {
			log.WithError(err).Error("Failed to save lead")
			return s.viewAfter(sess, sess.Fail(intake.KindPersistence, intake.MsgLeadSaveFailed, err))
		}
		sess.LeadCreated(leadID)
		log.WithField("lead_id", leadID).Info("lead_created")
	}
	log = log.WithField("lead_id", leadID)

	var failed []string
	usedPaths := map[string]bool{}
	for _, f := range plan.Files {
		sess.SetFileStatus(f.ID, intake.FileUploading)

		// A previous attempt may have stored the bytes but not the record.
		path := f.StoredPath
		if path == "" {
			path, err = s.storeFile(ctx, s.objectPath(plan.Identity.ID, leadID, f.Name, usedPaths), f)
			if err != nil {
				log.WithError(err).WithField("file_id", f.ID).Error("Failed to upload file")
				sess.SetFileStatus(f.ID, intake.FileError)
				failed = append(failed, f.Name)
				continue
			}
		} else {
			usedPaths[path] = true
		}

		if err := s.recordUpload(ctx, plan.Identity.ID, leadID, path, f); err != nil {
			log.WithError(err).WithFields(logrus.Fields{"file_id": f.ID, "path": path}).Error("Failed to record upload")
			sess.FileUnrecorded(f.ID, path)
			failed = append(failed, f.Name)
			continue
		}
		sess.FileStored(f.ID, path)
	}
	if len(failed) > 0 {
		return s.viewAfter(sess, sess.UploadIncomplete(failed))
	}
	log.WithField("files", len(plan.Files)).Info("upload_complete")

	notified := true
	if err := s.notifier.NotifyNewLead(ctx, dtos.NotifyLeadRequest{LeadID: leadID.String()}); err != nil {
		log.WithError(err).Warn("Lead notification failed")
		notified = false
	}
	sess.Complete(notified)
	return sess.View(s.now()), nil
}

// objectPath builds {identity}/{lead}/{millis}-{name}, moving the stamp
// forward a millisecond when two files in a batch would collide.
func (s *intakeService) objectPath(identityID, leadID uuid.UUID, name string, used map[string]bool) string {
	at := s.now()
	for {
		path := fmt.Sprintf("%s/%s/%s", identityID, leadID, intake.SanitizeFilename(name, at))
		if !used[path] {
			used[path] = true
			return path
		}
		at = at.Add(time.Millisecond)
	}
}

// storeFile writes the staged bytes of f and returns the stored path.
func (s *intakeService) storeFile(ctx context.Context, path string, f intake.PendingFile) (string, error) {
	blob := f.Blob()
	if blob == nil {
		return "", fmt.Errorf("file %s has no staged content", f.ID)
	}
	rc, err := blob.Open()
	if err != nil {
		return "", fmt.Errorf("open staged file: %w", err)
	}
	defer rc.Close()

	return s.store.Upload(ctx, path, rc, f.Size, f.ContentType)
}

func (s *intakeService) recordUpload(ctx context.Context, identityID, leadID uuid.UUID, path string, f intake.PendingFile) error {
	return s.uploads.Create(ctx, &models.Upload{
		IdentityID: identityID,
		LeadID:     leadID,
		FilePath:   path,
		FileName:   f.Name,
		FileType:   utils.NilIfEmpty(f.ContentType),
		FileSize:   f.Size,
	})
}

// viewAfter projects the session once err, which may have set the status
// line, has been produced.
func (s *intakeService) viewAfter(sess *intake.Session, err error) (intake.View, error) {
	return sess.View(s.now()), err
}
