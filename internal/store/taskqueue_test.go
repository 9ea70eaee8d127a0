package store

import (
	"testing"

	"audioconv/internal/models"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRedisConnOpt(t *testing.T) {
	opt, err := ParseRedisConnOpt("localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, asynq.RedisClientOpt{Addr: "localhost:6379"}, opt)

	opt, err = ParseRedisConnOpt("redis://:secret@redis.internal:6380/2")
	require.NoError(t, err)
	clientOpt, ok := opt.(asynq.RedisClientOpt)
	require.True(t, ok, "expected RedisClientOpt, got %T", opt)
	assert.Equal(t, "redis.internal:6380", clientOpt.Addr)
	assert.Equal(t, "secret", clientOpt.Password)
	assert.Equal(t, 2, clientOpt.DB)

	_, err = ParseRedisConnOpt("   ")
	assert.Error(t, err)

	_, err = ParseRedisConnOpt("http://localhost:6379")
	assert.Error(t, err)
}

func TestNewAsynqTaskQueue_Validation(t *testing.T) {
	_, err := NewAsynqTaskQueue(TaskQueueOptions{BrokerURL: "localhost:6379"})
	assert.ErrorContains(t, err, "queue name")

	_, err = NewAsynqTaskQueue(TaskQueueOptions{Queue: "conversions"})
	assert.ErrorContains(t, err, "broker")

	_, err = NewAsynqTaskQueue(TaskQueueOptions{Queue: "conversions", BrokerURL: "ftp://nope"})
	assert.ErrorContains(t, err, "broker")

	q, err := NewAsynqTaskQueue(TaskQueueOptions{Queue: "conversions", BrokerURL: "redis://localhost:6379/0"})
	require.NoError(t, err)
	assert.NoError(t, q.Close())
}

func TestJobFromTaskInfo(t *testing.T) {
	testCases := []struct {
		name      string
		info      *asynq.TaskInfo
		wantState models.JobState
		wantInfo  string
	}{
		{"pending", &asynq.TaskInfo{ID: "a", State: asynq.TaskStatePending}, models.JobStatePending, ""},
		{"scheduled", &asynq.TaskInfo{ID: "a", State: asynq.TaskStateScheduled}, models.JobStatePending, ""},
		{"active", &asynq.TaskInfo{ID: "a", State: asynq.TaskStateActive}, models.JobStateRunning, InfoRunning},
		{"retry", &asynq.TaskInfo{ID: "a", State: asynq.TaskStateRetry, LastErr: "boom"}, models.JobStateRetry, "boom"},
		{"archived with error", &asynq.TaskInfo{ID: "a", State: asynq.TaskStateArchived, LastErr: "write result: EOF"}, models.JobStateFailure, "write result: EOF"},
		{"archived without error", &asynq.TaskInfo{ID: "a", State: asynq.TaskStateArchived}, models.JobStateFailure, InfoFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			job, err := JobFromTaskInfo(tc.info)
			require.NoError(t, err)
			assert.Equal(t, "a", job.ID)
			assert.Equal(t, tc.wantState, job.State)
			assert.Equal(t, tc.wantInfo, job.Info)
			assert.Nil(t, job.Result)
		})
	}
}

func TestJobFromTaskInfo_Completed(t *testing.T) {
	info := &asynq.TaskInfo{
		ID:     "abc123",
		State:  asynq.TaskStateCompleted,
		Result: []byte(`{"status":"completed","output_files":["outputs/song_converted.mp3"],"file_count":1}`),
	}
	job, err := JobFromTaskInfo(info)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateSuccess, job.State)
	require.NotNil(t, job.Result)
	assert.Equal(t, models.CompletedResult([]string{"outputs/song_converted.mp3"}), *job.Result)

	// An error result still lands in SUCCESS; callers inspect the nested status.
	info.Result = []byte(`{"status":"error","message":"Input file not found"}`)
	job, err = JobFromTaskInfo(info)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateSuccess, job.State)
	assert.True(t, job.Result.IsError())
	assert.Equal(t, "Input file not found", job.Result.Message)

	info.Result = []byte(`{`)
	_, err = JobFromTaskInfo(info)
	assert.Error(t, err)
}
