package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/WmBreck/2nd-opinion-construction/internal/models"
)

var ErrIdentityExists = errors.New("identity already exists")

type IdentityRepository interface {
	Create(ctx context.Context, i *models.Identity) error
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	MarkVerified(ctx context.Context, id uuid.UUID) error
}

type identityRepository struct {
	db DB
}

func NewIdentityRepository(db DB) IdentityRepository {
	return &identityRepository{db: db}
}

func (r *identityRepository) Create(ctx context.Context, i *models.Identity) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO identities (id, email, created_at, last_verified_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING created_at, last_verified_at
	`, i.ID, i.Email).Scan(&i.CreatedAt, &i.LastVerifiedAt)
	if isPgCode(err, pgUniqueViolation) {
		return ErrIdentityExists
	}
	return err
}

func (r *identityRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	var (
		i            models.Identity
		lastVerified pgtype.Timestamptz
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, email, created_at, last_verified_at
		FROM identities
		WHERE email = $1
	`, email).Scan(&i.ID, &i.Email, &i.CreatedAt, &lastVerified)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	i.LastVerifiedAt = timePtr(lastVerified)
	return &i, nil
}

func (r *identityRepository) MarkVerified(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE identities SET last_verified_at = NOW() WHERE id = $1`, id)
	return err
}
