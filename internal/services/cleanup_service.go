package services

import (
	"context"

	"github.com/WmBreck/2nd-opinion-construction/internal/repositories"
	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

// CleanupService purges expired verification codes and rate-limit rows.
type CleanupService interface {
	CleanupVerificationCodes(ctx context.Context) error
	CleanupRateLimits(ctx context.Context) error
}

type cleanupService struct {
	codes      repositories.EmailVerificationRepository
	rateLimits repositories.RateLimitRepository
}

func NewCleanupService(
	codes repositories.EmailVerificationRepository,
	rateLimits repositories.RateLimitRepository,
) CleanupService {
	return &cleanupService{codes: codes, rateLimits: rateLimits}
}

func (s *cleanupService) CleanupVerificationCodes(ctx context.Context) error {
	if err := s.codes.CleanupExpired(ctx); err != nil {
		utils.Logger.WithError(err).Error("Failed to cleanup email_verification_codes")
		return err
	}
	utils.Logger.Info("Daily verification-codes cleanup completed successfully.")
	return nil
}

func (s *cleanupService) CleanupRateLimits(ctx context.Context) error {
	if err := s.rateLimits.CleanupExpired(ctx); err != nil {
		utils.Logger.WithError(err).Error("Failed to cleanup expired rate_limit_attempts")
		return err
	}
	utils.Logger.Info("Daily rate limit counter cleanup completed successfully.")
	return nil
}
