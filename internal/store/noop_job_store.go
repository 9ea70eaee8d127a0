package store

import (
	"context"
	"encoding/json"

	"audioconv/internal/models"

	"github.com/google/uuid"
)

// NoopJobStore is used when no database is configured.
type NoopJobStore struct{}

func (NoopJobStore) RecordJobEnqueue(ctx context.Context, params JobRecordParams) error {
	return nil
}

func (NoopJobStore) UpdateJobResult(ctx context.Context, jobID uuid.UUID, status string, result json.RawMessage) error {
	return nil
}

func (NoopJobStore) ListJobs(ctx context.Context, limit, offset int) ([]*models.JobRecord, error) {
	return nil, nil
}

var _ JobStore = NoopJobStore{}
