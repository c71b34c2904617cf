package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/WmBreck/2nd-opinion-construction/internal/config"
	"github.com/WmBreck/2nd-opinion-construction/internal/intake"
	"github.com/WmBreck/2nd-opinion-construction/internal/models"
	"github.com/WmBreck/2nd-opinion-construction/internal/repositories"
	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

const maxCodeAttempts = 5

// ErrUnknownEmail is returned when a code is requested or verified for an
// address with no identity and creation was not allowed.
var ErrUnknownEmail = errors.New("no identity for email")

// VerificationService issues one-time email codes and turns a correct code
// into a verified identity.
type VerificationService interface {
	RequestCode(ctx context.Context, email, clientIP string, allowCreate bool) error
	VerifyCode(ctx context.Context, email, code string, allowCreate bool) (*intake.Identity, error)
}

// EmailChecker reports whether an address can receive mail.
type EmailChecker func(ctx context.Context, email string) (bool, error)

type verificationService struct {
	cfg         *config.Config
	codes       repositories.EmailVerificationRepository
	identities  repositories.IdentityRepository
	rateLimiter RateLimiterService
	mailer      Mailer
	checkEmail  EmailChecker
	now         func() time.Time
}

func NewVerificationService(
	cfg *config.Config,
	codes repositories.EmailVerificationRepository,
	identities repositories.IdentityRepository,
	rateLimiter RateLimiterService,
	mailer Mailer,
	checkEmail EmailChecker,
) VerificationService {
	if checkEmail == nil {
		checkEmail = NewEmailChecker(cfg.SendGridAPIKey, cfg.LDFlag_ValidateEmailWithSendGrid)
	}
	return &verificationService{
		cfg:         cfg,
		codes:       codes,
		identities:  identities,
		rateLimiter: rateLimiter,
		mailer:      mailer,
		checkEmail:  checkEmail,
		now:         time.Now,
	}
}

func (s *verificationService) isTestEmail(email string) bool {
	return s.cfg.LDFlag_AcceptTestEmails && strings.HasSuffix(email, utils.TestEmailSuffix)
}

// ---------------------------------------------------------------------
// Request
// ---------------------------------------------------------------------

func (s *verificationService) RequestCode(ctx context.Context, email, clientIP string, allowCreate bool) error {
	if err := s.rateLimiter.CheckEmailRateLimits(ctx, clientIP, email); err != nil {
		return err
	}

	if !allowCreate {
		existing, err := s.identities.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrUnknownEmail
		}
	}

	testEmail := s.isTestEmail(email)
	if !testEmail {
		ok, err := s.checkEmail(ctx, email)
		if err != nil {
			return err
		}
		if !ok {
			return utils.ErrInvalidEmail
		}
	}

	// A stale code left behind only means two rows for the email; the newest wins.
	log := utils.Logger.WithField("email_domain", utils.EmailDomain(email))
	existing, err := s.codes.GetCode(ctx, email)
	if err != nil {
		log.WithError(err).Warn("Failed to look up previous verification code")
	}
	if existing != nil {
		if err := s.codes.DeleteCode(ctx, existing.ID); err != nil {
			log.WithError(err).Warn("Failed to delete previous verification code")
		}
	}

	expiresAt := s.now().Add(s.cfg.VerificationCodeExpiry)
	if testEmail {
		return s.codes.CreateCode(ctx, email, utils.TestEmailCode, expiresAt)
	}

	code, err := utils.RandomNumericString(s.cfg.VerificationCodeLength)
	if err != nil {
		return err
	}
	if err := s.codes.CreateCode(ctx, email, code, expiresAt); err != nil {
		return err
	}

	minutes := int(s.cfg.VerificationCodeExpiry / time.Minute)
	msg := Message{
		From:    s.cfg.MailFrom,
		To:      email,
		Subject: s.cfg.OrganizationName + " - Verification Code",
		Text:    fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes),
		HTML: fmt.Sprintf(
			verificationEmailHTML,
			"Verify your email",
			fmt.Sprintf("Enter this code to continue sending us your bid. It expires in %d minutes.", minutes),
			code,
			s.now().Year(),
		),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		utils.Logger.WithError(err).
			WithField("email_domain", utils.EmailDomain(email)).
			Error("Failed to send verification email")
		return err
	}
	return nil
}

// ---------------------------------------------------------------------
// Verify
// ---------------------------------------------------------------------

// VerifyCode returns utils.ErrInvalidCode for a wrong, expired, reused or
// exhausted code. The identity is resolved before the code is consumed so
// a storage failure leaves the code usable for a retry.
func (s *verificationService) VerifyCode(ctx context.Context, email, code string, allowCreate bool) (*intake.Identity, error) {
	rec, err := s.codes.GetCode(ctx, email)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Verified || rec.Attempts >= maxCodeAttempts {
		return nil, utils.ErrInvalidCode
	}
	if rec.VerificationCode != code || s.now().After(rec.ExpiresAt) {
		_ = s.codes.IncrementAttempts(ctx, rec.ID)
		return nil, utils.ErrInvalidCode
	}

	identity, err := s.resolveIdentity(ctx, email, allowCreate)
	if err != nil {
		return nil, err
	}
	if err := s.codes.MarkVerified(ctx, rec.ID); err != nil {
		if errors.Is(err, utils.ErrNoRowsUpdated) {
			return nil, utils.ErrInvalidCode
		}
		return nil, err
	}
	return &intake.Identity{ID: identity.ID, Email: identity.Email}, nil
}

func (s *verificationService) resolveIdentity(ctx context.Context, email string, allowCreate bool) (*models.Identity, error) {
	existing, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.identities.MarkVerified(ctx, existing.ID); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !allowCreate {
		return nil, ErrUnknownEmail
	}

	created := &models.Identity{Email: email}
	err = s.identities.Create(ctx, created)
	if errors.Is(err, repositories.ErrIdentityExists) {
		// Lost a race with a concurrent verify for the same address.
		existing, err = s.identities.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, repositories.ErrIdentityExists
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}
