package services

import (
	"context"
	"fmt"
	"time"

	"github.com/WmBreck/2nd-opinion-construction/internal/config"
	"github.com/WmBreck/2nd-opinion-construction/internal/repositories"
	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

// RateLimiterService guards code sends with DB-backed hourly counters.
type RateLimiterService interface {
	CheckEmailRateLimits(ctx context.Context, ip, emailAddress string) error
}

type rateLimiterService struct {
	repo repositories.RateLimitRepository
	cfg  *config.Config
}

func NewRateLimiterService(repo repositories.RateLimitRepository, cfg *config.Config) RateLimiterService {
	return &rateLimiterService{repo: repo, cfg: cfg}
}

type emailLimit struct {
	key   string
	limit int
	scope string
}

// CheckEmailRateLimits checks the global, per-IP and per-address buckets
// in that order and stops at the first one that is exhausted.
func (s *rateLimiterService) CheckEmailRateLimits(ctx context.Context, ip, emailAddress string) error {
	limits := []emailLimit{
		{key: "email:global", limit: s.cfg.GlobalEmailLimitPerHour, scope: "global"},
		{key: fmt.Sprintf("email:ip:%s", ip), limit: s.cfg.EmailLimitPerIPPerHour, scope: "ip"},
		{key: fmt.Sprintf("email:address:%s", emailAddress), limit: s.cfg.EmailLimitPerEmailPerHour, scope: "address"},
	}

	window := s.cfg.RateLimitWindow
	if window <= 0 {
		window = time.Hour
	}
	for _, l := range limits {
		allowed, err := s.repo.IncrementAndCheck(ctx, l.key, l.limit, window)
		if err != nil {
			return err
		}
		if !allowed {
			utils.Logger.WithField("scope", l.scope).Warnf("Email rate limit exceeded (key: %s)", l.key)
			return utils.ErrRateLimitExceeded
		}
	}
	return nil
}
