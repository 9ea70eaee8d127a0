package primary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"audioconv/internal/models"
	"audioconv/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

// --- Job Store Implementation ---

// RecordJobEnqueue inserts a record into the conversion_jobs table.
func (s *StoreImpl) RecordJobEnqueue(ctx context.Context, params store.JobRecordParams) error {
	query := `
		INSERT INTO conversion_jobs (job_id, task_type, input_ref, filename, queue, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (job_id) DO NOTHING
		RETURNING id`

	var insertedID int64
	err := s.db.QueryRow(ctx, query,
		params.JobID,
		params.TaskType,
		params.InputRef,
		params.Filename,
		params.Queue,
		params.Status,
	).Scan(&insertedID)
	if err != nil {
		// ON CONFLICT DO NOTHING returns no row for an already recorded job.
		if errors.Is(err, pgx.ErrNoRows) {
			log.Debugf("Job %s already recorded, skipping insertion.", params.JobID)
			return nil
		}
		return fmt.Errorf("failed to record job enqueue event for JobID %s: %w", params.JobID, err)
	}

	log.Debugf("Recorded job enqueue event for JobID %s with DB ID %d", params.JobID, insertedID)
	return nil
}

// UpdateJobResult stores the terminal status and result payload of a job.
func (s *StoreImpl) UpdateJobResult(ctx context.Context, jobID uuid.UUID, status string, result json.RawMessage) error {
	query := `UPDATE conversion_jobs SET status = $1, result = $2, updated_at = now() WHERE job_id = $3`
	cmdTag, err := s.db.Exec(ctx, query, status, result, jobID)
	if err != nil {
		return fmt.Errorf("failed to update result for job %s: %w", jobID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not found to update result: %w", jobID, store.ErrNotFound)
	}
	return nil
}

// ListJobs retrieves recorded jobs, newest first.
func (s *StoreImpl) ListJobs(ctx context.Context, limit, offset int) ([]*models.JobRecord, error) {
	query := `
		SELECT id, job_id, task_type, input_ref, filename, queue, status, result, created_at, updated_at
		FROM conversion_jobs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversion jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.JobRecord
	for rows.Next() {
		job := &models.JobRecord{}
		err := rows.Scan(
			&job.ID, &job.JobID, &job.TaskType, &job.InputRef, &job.Filename,
			&job.Queue, &job.Status, &job.Result, &job.CreatedAt, &job.UpdatedAt,
		)
		if err != nil {
			return jobs, fmt.Errorf("failed to scan conversion job row: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return jobs, fmt.Errorf("error iterating conversion job rows: %w", err)
	}
	return jobs, nil
}

// Ensure StoreImpl satisfies the JobStore interface
var _ store.JobStore = (*StoreImpl)(nil)
