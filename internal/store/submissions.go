package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
)

// SubmissionStore persists PortalSubmission records. All mutations are
// partial-field updates; records are never deleted.
type SubmissionStore struct {
	pool DBPool
	log  *zap.Logger
}

func NewSubmissionStore(pool DBPool, logger *zap.Logger) *SubmissionStore {
	return &SubmissionStore{pool: pool, log: logger.Named("submission_store")}
}

const submissionColumns = `id, form_submission_id, portal_type, status, retry_count,
	confirmation_number, confirmation_receipt_url, error_message,
	last_attempt_at, next_retry_at, created_at, updated_at`

func scanSubmission(row pgx.Row) (*domain.PortalSubmission, error) {
	var ps domain.PortalSubmission
	err := row.Scan(
		&ps.ID, &ps.FormSubmissionID, &ps.PortalType, &ps.Status, &ps.RetryCount,
		&ps.ConfirmationNumber, &ps.ConfirmationReceiptURL, &ps.ErrorMessage,
		&ps.LastAttemptAt, &ps.NextRetryAt, &ps.CreatedAt, &ps.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to scan portal submission: %w", err)
	}
	return &ps, nil
}

// GetByID loads one submission or domain.ErrSubmissionNotFound.
func (s *SubmissionStore) GetByID(ctx context.Context, id string) (*domain.PortalSubmission, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM portal_submissions WHERE id = $1`, id)
	return scanSubmission(row)
}

// GetByFormSubmissionID returns the submission attached to a form submission.
func (s *SubmissionStore) GetByFormSubmissionID(ctx context.Context, formSubmissionID string) (*domain.PortalSubmission, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM portal_submissions WHERE form_submission_id = $1
		 ORDER BY created_at DESC LIMIT 1`, formSubmissionID)
	return scanSubmission(row)
}

// Create inserts a new PENDING submission for a form routed to a portal.
func (s *SubmissionStore) Create(ctx context.Context, formSubmissionID string, portalType domain.PortalType) (*domain.PortalSubmission, error) {
	if !portalType.IsValid() {
		return nil, fmt.Errorf("%w: invalid portal type %q", domain.ErrValidation, portalType)
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO portal_submissions (id, form_submission_id, portal_type, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+submissionColumns,
		uuid.New().String(), formSubmissionID, portalType, domain.StatusPending)
	return scanSubmission(row)
}

// SubmissionUpdate describes a partial-field update. Nil pointers leave the
// column untouched; ClearNextRetryAt nulls next_retry_at explicitly.
type SubmissionUpdate struct {
	Status                 *domain.Status
	RetryCount             *int
	ConfirmationNumber     *string
	ConfirmationReceiptURL *string
	ErrorMessage           *string
	LastAttemptAt          *time.Time
	NextRetryAt            *time.Time
	ClearNextRetryAt       bool
}

// Update applies a partial-field update and returns the updated record, or
// domain.ErrSubmissionNotFound when the id does not resolve.
func (s *SubmissionStore) Update(ctx context.Context, id string, upd SubmissionUpdate) (*domain.PortalSubmission, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if upd.Status != nil {
		if !upd.Status.IsValid() {
			return nil, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, *upd.Status)
		}
		add("status", *upd.Status)
	}
	if upd.RetryCount != nil {
		add("retry_count", *upd.RetryCount)
	}
	if upd.ConfirmationNumber != nil {
		add("confirmation_number", *upd.ConfirmationNumber)
	}
	if upd.ConfirmationReceiptURL != nil {
		add("confirmation_receipt_url", *upd.ConfirmationReceiptURL)
	}
	if upd.ErrorMessage != nil {
		add("error_message", *upd.ErrorMessage)
	}
	if upd.LastAttemptAt != nil {
		add("last_attempt_at", *upd.LastAttemptAt)
	}
	if upd.NextRetryAt != nil {
		add("next_retry_at", *upd.NextRetryAt)
	} else if upd.ClearNextRetryAt {
		sets = append(sets, "next_retry_at = NULL")
	}

	sql := fmt.Sprintf(
		`UPDATE portal_submissions SET %s WHERE id = $1 RETURNING %s`,
		strings.Join(sets, ", "), submissionColumns)

	return scanSubmission(s.pool.QueryRow(ctx, sql, args...))
}

// ListDueForRetry returns RETRY_SCHEDULED submissions whose next_retry_at is
// at or before now, oldest first. Used to re-arm the scheduler after a
// process restart.
func (s *SubmissionStore) ListDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.PortalSubmission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+submissionColumns+`
		 FROM portal_submissions
		 WHERE status = $1 AND next_retry_at IS NOT NULL AND next_retry_at <= $2
		 ORDER BY next_retry_at ASC
		 LIMIT $3`,
		domain.StatusRetryScheduled, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due retries: %w", err)
	}
	defer rows.Close()

	var out []domain.PortalSubmission
	for rows.Next() {
		ps, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due retries: %w", err)
	}
	return out, nil
}
