package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/WmBreck/2nd-opinion-construction/internal/models"
)

var ErrUnknownIdentity = errors.New("lead owner does not exist")

type LeadRepository interface {
	Create(ctx context.Context, l *models.Lead) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Lead, error)
}

type leadRepository struct {
	db DB
}

func NewLeadRepository(db DB) LeadRepository {
	return &leadRepository{db: db}
}

// Create inserts l and fills in its server-assigned created_at.
// Empty optional fields are expected as nil and stored as NULL.
func (r *leadRepository) Create(ctx context.Context, l *models.Lead) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = models.LeadStatusNew
	}

	q := `
		INSERT INTO leads (
			id, identity_id, name, email, phone, city, zip, reason,
			project_type, budget_range, notes, consent, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13, NOW())
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, q,
		l.ID, l.IdentityID, l.Name, l.Email, l.Phone, l.City, l.Zip, l.Reason,
		l.ProjectType, l.BudgetRange, l.Notes, l.Consent, l.Status,
	).Scan(&l.CreatedAt)
	if err != nil {
		if isPgCode(err, pgForeignKeyViolation) {
			return fmt.Errorf("%w: %s", ErrUnknownIdentity, l.IdentityID)
		}
		return err
	}
	return nil
}

func (r *leadRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	row := r.db.QueryRow(ctx, baseSelectLead()+" WHERE id = $1", id)
	return r.scanLead(row)
}

func baseSelectLead() string {
	return `
		SELECT id, identity_id, name, email, phone, city, zip, reason,
		       project_type, budget_range, notes, consent, status, created_at
		FROM leads`
}

func (r *leadRepository) scanLead(row pgx.Row) (*models.Lead, error) {
	var (
		l                                          models.Lead
		city, zip, projectType, budgetRange, notes pgtype.Text
	)
	err := row.Scan(
		&l.ID, &l.IdentityID, &l.Name, &l.Email, &l.Phone, &city, &zip, &l.Reason,
		&projectType, &budgetRange, &notes, &l.Consent, &l.Status, &l.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	l.City = textPtr(city)
	l.Zip = textPtr(zip)
	l.ProjectType = textPtr(projectType)
	l.BudgetRange = textPtr(budgetRange)
	l.Notes = textPtr(notes)
	return &l, nil
}
