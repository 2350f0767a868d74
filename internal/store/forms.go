package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
)

// FormSubmissionStore reads the originating form submissions. The case
// management application owns these rows; this store is read-only.
type FormSubmissionStore struct {
	pool DBPool
	log  *zap.Logger
}

func NewFormSubmissionStore(pool DBPool, logger *zap.Logger) *FormSubmissionStore {
	return &FormSubmissionStore{pool: pool, log: logger.Named("form_submission_store")}
}

// GetByID loads a form submission or domain.ErrFormSubmissionNotFound.
func (s *FormSubmissionStore) GetByID(ctx context.Context, id string) (*domain.FormSubmission, error) {
	var fs domain.FormSubmission
	err := s.pool.QueryRow(ctx,
		`SELECT id, template_id, case_id, form_data, status
		 FROM form_submissions WHERE id = $1`, id,
	).Scan(&fs.ID, &fs.TemplateID, &fs.CaseID, &fs.FormData, &fs.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFormSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to load form submission %s: %w", id, err)
	}
	return &fs, nil
}
