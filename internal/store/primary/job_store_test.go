package primary

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"audioconv/internal/models"
	"audioconv/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore connects to TEST_DATABASE_URL and skips when it is unset.
func setupTestStore(t *testing.T) *StoreImpl {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL job store tests")
	}
	s, err := NewPrimaryStore(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestNewPrimaryStore_EmptyDSN(t *testing.T) {
	_, err := NewPrimaryStore(context.Background(), "")
	assert.Error(t, err)
}

func TestNewPrimaryStore_InvalidDSN(t *testing.T) {
	_, err := NewPrimaryStore(context.Background(), "postgres://%zz")
	assert.ErrorContains(t, err, "parse database DSN")
}

func TestJobStore_Lifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	jobID := uuid.New()

	params := store.JobRecordParams{
		JobID:    jobID,
		TaskType: models.TaskTypeConversion,
		InputRef: "uploads/" + jobID.String() + "/song.wav",
		Filename: "song.wav",
		Queue:    "conversions",
		Status:   models.JobStatusEnqueued,
	}
	require.NoError(t, s.RecordJobEnqueue(ctx, params))
	require.NoError(t, s.RecordJobEnqueue(ctx, params), "duplicate enqueue is ignored")

	result, err := json.Marshal(models.CompletedResult([]string{"outputs/song_converted.mp3"}))
	require.NoError(t, err)
	require.NoError(t, s.UpdateJobResult(ctx, jobID, models.JobStatusCompleted, result))

	jobs, err := s.ListJobs(ctx, 100, 0)
	require.NoError(t, err)

	var found *models.JobRecord
	for _, j := range jobs {
		if j.JobID == jobID {
			found = j
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, models.JobStatusCompleted, found.Status)
	assert.Equal(t, "song.wav", found.Filename)
	assert.JSONEq(t, string(result), string(found.Result))
}

func TestJobStore_UpdateUnknownJob(t *testing.T) {
	s := setupTestStore(t)

	err := s.UpdateJobResult(context.Background(), uuid.New(), models.JobStatusFailed, json.RawMessage(`{"status":"error","message":"x"}`))
	assert.ErrorIs(t, err, store.ErrNotFound)
}
