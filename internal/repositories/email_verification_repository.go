package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/WmBreck/2nd-opinion-construction/internal/models"
	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

type EmailVerificationRepository interface {
	CreateCode(ctx context.Context, email, code string, expiresAt time.Time) error
	// GetCode returns the newest code issued for email, or nil.
	GetCode(ctx context.Context, email string) (*models.EmailVerificationCode, error)
	DeleteCode(ctx context.Context, id uuid.UUID) error
	IncrementAttempts(ctx context.Context, id uuid.UUID) error
	MarkVerified(ctx context.Context, id uuid.UUID) error
	CleanupExpired(ctx context.Context) error
}

type emailVerificationRepository struct {
	db DB
}

func NewEmailVerificationRepository(db DB) EmailVerificationRepository {
	return &emailVerificationRepository{db: db}
}

func (r *emailVerificationRepository) CreateCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	q := `
		INSERT INTO email_verification_codes
			(id, email, verification_code, expires_at, created_at, attempts)
		VALUES ($1, $2, $3, $4, NOW(), 0)
	`
	_, err := r.db.Exec(ctx, q, uuid.New(), email, code, expiresAt)
	return err
}

func (r *emailVerificationRepository) GetCode(ctx context.Context, email string) (*models.EmailVerificationCode, error) {
	q := `
		SELECT id, email, verification_code, expires_at, attempts,
		       verified, verified_at, created_at
		FROM email_verification_codes
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var (
		rec        models.EmailVerificationCode
		verifiedAt pgtype.Timestamptz
	)
	err := r.db.QueryRow(ctx, q, email).Scan(
		&rec.ID,
		&rec.Email,
		&rec.VerificationCode,
		&rec.ExpiresAt,
		&rec.Attempts,
		&rec.Verified,
		&verifiedAt,
		&rec.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	rec.VerifiedAt = timePtr(verifiedAt)
	return &rec, nil
}

func (r *emailVerificationRepository) DeleteCode(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM email_verification_codes WHERE id = $1`, id)
	return err
}

func (r *emailVerificationRepository) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE email_verification_codes SET attempts = attempts + 1 WHERE id = $1`, id)
	return err
}

func (r *emailVerificationRepository) MarkVerified(ctx context.Context, id uuid.UUID) error {
	q := `
		UPDATE email_verification_codes
		SET verified = TRUE,
		    verified_at = NOW()
		WHERE id = $1 AND verified = FALSE
	`
	tag, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	// Someone else consumed the code between the read and this update.
	if tag.RowsAffected() == 0 {
		return utils.ErrNoRowsUpdated
	}
	return nil
}

func (r *emailVerificationRepository) CleanupExpired(ctx context.Context) error {
	q := `
		DELETE FROM email_verification_codes
		WHERE
		  (verified = FALSE AND expires_at < NOW())
		  OR
		  (verified = TRUE AND verified_at + INTERVAL '15 minutes' < NOW())
	`
	_, err := r.db.Exec(ctx, q)
	return err
}
