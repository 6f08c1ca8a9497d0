package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
)

type SubmissionRepo struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepo(pool *pgxpool.Pool) *SubmissionRepo {
	return &SubmissionRepo{pool: pool}
}

// CreateTx inserts a submission inside the caller's transaction. Prior
// submissions for the same work item are retained, never overwritten.
func (r *SubmissionRepo) CreateTx(ctx context.Context, tx pgx.Tx, s *models.Submission) error {
	return tx.QueryRow(ctx, `
		INSERT INTO submissions (id, work_item_id, contractor_id, artifact_urls, notes, outcome, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING submitted_at
	`, s.ID, s.WorkItemID, s.ContractorID, s.ArtifactURLs, s.Notes, s.Outcome, s.SubmittedAt).Scan(&s.SubmittedAt)
}

// ActiveByWorkItemTx returns the most recent submission for the work item.
// Only the active submission is reviewable.
func (r *SubmissionRepo) ActiveByWorkItemTx(ctx context.Context, tx pgx.Tx, workItemID uuid.UUID) (*models.Submission, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, work_item_id, contractor_id, artifact_urls, notes, outcome, review_notes, submitted_at, reviewed_at
		FROM submissions WHERE work_item_id = $1 ORDER BY submitted_at DESC, id DESC LIMIT 1
	`, workItemID)
	return scanSubmission(row)
}

// SetOutcomeTx records the review outcome on a submission.
func (r *SubmissionRepo) SetOutcomeTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, outcome, reviewNotes string, reviewedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE submissions SET outcome = $2, review_notes = $3, reviewed_at = $4 WHERE id = $1
	`, id, outcome, reviewNotes, reviewedAt)
	return err
}

func (r *SubmissionRepo) ListByWorkItemID(ctx context.Context, workItemID uuid.UUID) ([]*models.Submission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, work_item_id, contractor_id, artifact_urls, notes, outcome, review_notes, submitted_at, reviewed_at
		FROM submissions WHERE work_item_id = $1 ORDER BY submitted_at ASC
	`, workItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func scanSubmission(row pgx.Row) (*models.Submission, error) {
	var s models.Submission
	var reviewNotes *string
	err := row.Scan(&s.ID, &s.WorkItemID, &s.ContractorID, &s.ArtifactURLs, &s.Notes, &s.Outcome, &reviewNotes, &s.SubmittedAt, &s.ReviewedAt)
	if err != nil {
		return nil, err
	}
	if reviewNotes != nil {
		s.ReviewNotes = *reviewNotes
	}
	return &s, nil
}
