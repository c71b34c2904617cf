package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/WmBreck/2nd-opinion-construction/internal/models"
)

type UploadRepository interface {
	Create(ctx context.Context, u *models.Upload) error
	ListByLeadID(ctx context.Context, leadID uuid.UUID) ([]*models.Upload, error)
}

type uploadRepository struct {
	db DB
}

func NewUploadRepository(db DB) UploadRepository {
	return &uploadRepository{db: db}
}

func (r *uploadRepository) Create(ctx context.Context, u *models.Upload) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	q := `
		INSERT INTO uploads (
			id, identity_id, lead_id, file_path, file_name, file_type, file_size, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7, NOW())
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, q,
		u.ID, u.IdentityID, u.LeadID, u.FilePath, u.FileName, u.FileType, u.FileSize,
	).Scan(&u.CreatedAt)
}

// ListByLeadID returns the lead's uploads oldest first.
func (r *uploadRepository) ListByLeadID(ctx context.Context, leadID uuid.UUID) ([]*models.Upload, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, identity_id, lead_id, file_path, file_name, file_type, file_size, created_at
		FROM uploads
		WHERE lead_id = $1
		ORDER BY created_at, id
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Upload
	for rows.Next() {
		u, err := r.scanUpload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *uploadRepository) scanUpload(row pgx.Row) (*models.Upload, error) {
	var (
		u        models.Upload
		fileType pgtype.Text
	)
	if err := row.Scan(
		&u.ID, &u.IdentityID, &u.LeadID, &u.FilePath, &u.FileName, &fileType, &u.FileSize, &u.CreatedAt,
	); err != nil {
		return nil, err
	}
	u.FileType = textPtr(fileType)
	return &u, nil
}
