package apihandlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"audioconv/internal/metrics"
	"audioconv/internal/models"
	"audioconv/internal/services"
	"audioconv/internal/store"
	"audioconv/internal/store/blob"
	"audioconv/internal/tasks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- In-memory TaskQueue ---
type fakeQueue struct {
	mu        sync.Mutex
	submitted []tasks.ConversionPayload
	jobs      map[string]*models.Job
	submitErr error
	lookupErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[string]*models.Job)}
}

func (q *fakeQueue) Submit(ctx context.Context, p tasks.ConversionPayload) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitErr != nil {
		return "", q.submitErr
	}
	id := uuid.NewString()
	q.submitted = append(q.submitted, p)
	q.jobs[id] = &models.Job{ID: id, State: models.JobStatePending}
	return id, nil
}

func (q *fakeQueue) Lookup(ctx context.Context, id string) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lookupErr != nil {
		return nil, q.lookupErr
	}
	if job, ok := q.jobs[id]; ok {
		return job, nil
	}
	return &models.Job{ID: id, State: models.JobStatePending}, nil
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) set(job *models.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.ID] = job
}

// --- Recording JobStore ---
type recordingJobStore struct {
	store.NoopJobStore
	mu      sync.Mutex
	records []store.JobRecordParams
}

func (s *recordingJobStore) RecordJobEnqueue(ctx context.Context, params store.JobRecordParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, params)
	return nil
}

type testEnv struct {
	router    *gin.Engine
	handler   *APIHandler
	blobs     *blob.FileStore
	queue     *fakeQueue
	jobs      *recordingJobStore
	metrics   *metrics.Collector
	uploadDir string
	outputDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	uploadDir := filepath.Join(root, "uploads")
	outputDir := filepath.Join(root, "outputs")
	blobs, err := blob.NewFileStore(uploadDir, outputDir)
	require.NoError(t, err)

	env := &testEnv{
		blobs:     blobs,
		queue:     newFakeQueue(),
		jobs:      &recordingJobStore{},
		metrics:   metrics.NewCollector(),
		uploadDir: uploadDir,
		outputDir: outputDir,
	}
	env.handler = &APIHandler{
		ServiceName: "audio-converter",
		QueueName:   "conversions",
		Blobs:       env.blobs,
		Queue:       env.queue,
		Jobs:        env.jobs,
		Metrics:     env.metrics,
	}
	env.router = NewRouter(env.handler, env.metrics.Handler())
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// uploadRequest builds a multipart POST /convert with a single part.
func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/convert", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got), rec.Body.String())
	return got
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)
	for _, p := range []string{"/", "/health"} {
		rec := env.do(httptest.NewRequest(http.MethodGet, p, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"healthy","service":"audio-converter"}`, rec.Body.String())
	}
}

func TestConvertHandler_BadRequests(t *testing.T) {
	testCases := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		wantMsg string
	}{
		{
			name:    "wrong field",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "audio", "song.wav", []byte("x")) },
			wantMsg: MsgNoFileProvided,
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader(`{"file":"song.wav"}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantMsg: MsgNoFileProvided,
		},
		{
			name:    "empty filename",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "file", "", []byte("x")) },
			wantMsg: MsgNoFileSelected,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(tc.req(t))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"`+tc.wantMsg+`","code":"bad_request"}`, rec.Body.String())
			assert.Empty(t, env.queue.submitted, "nothing may be enqueued")
			assert.Zero(t, countFiles(t, env.uploadDir), "nothing may be written")
			assert.Empty(t, env.jobs.records)
		})
	}
}

func TestConvertHandler_Accepted(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(uploadRequest(t, "file", "song.wav", []byte("RIFFdata")))

	require.Equal(t, http.StatusAccepted, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "accepted", got["status"])
	assert.Equal(t, MsgConversionStart, got["message"])
	taskID, _ := got["task_id"].(string)
	assert.NotEmpty(t, taskID)

	require.Len(t, env.queue.submitted, 1)
	p := env.queue.submitted[0]
	assert.Equal(t, "song.wav", p.Filename)
	assert.True(t, strings.HasSuffix(p.Input, "/song.wav"), p.Input)

	data, err := os.ReadFile(filepath.Join(env.uploadDir, filepath.FromSlash(p.Input)))
	require.NoError(t, err)
	assert.Equal(t, "RIFFdata", string(data))

	require.Len(t, env.jobs.records, 1)
	assert.Equal(t, taskID, env.jobs.records[0].JobID.String())
	assert.Equal(t, models.JobStatusEnqueued, env.jobs.records[0].Status)
	assert.Equal(t, "uploads/"+p.Input, env.jobs.records[0].InputRef)
}

func TestConvertHandler_SameNameDoesNotCollide(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusAccepted, env.do(uploadRequest(t, "file", "song.wav", []byte("one"))).Code)
	require.Equal(t, http.StatusAccepted, env.do(uploadRequest(t, "file", "song.wav", []byte("two"))).Code)

	require.Len(t, env.queue.submitted, 2)
	assert.NotEqual(t, env.queue.submitted[0].Input, env.queue.submitted[1].Input)
	assert.Equal(t, 2, countFiles(t, env.uploadDir))
}

func TestConvertHandler_StripsClientPath(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(uploadRequest(t, "file", `C:\music\song.wav`, []byte("x")))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, env.queue.submitted, 1)
	assert.Equal(t, "song.wav", env.queue.submitted[0].Filename)
}

func TestConvertHandler_EnqueueFailureRemovesUpload(t *testing.T) {
	env := newTestEnv(t)
	env.queue.submitErr = errors.New("dial tcp: connection refused")

	rec := env.do(uploadRequest(t, "file", "song.wav", []byte("x")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decode(t, rec)["code"])
	assert.Zero(t, countFiles(t, env.uploadDir))
	assert.Empty(t, env.jobs.records)
}

func TestStatusHandler(t *testing.T) {
	env := newTestEnv(t)
	env.queue.set(&models.Job{ID: "running", State: models.JobStateRunning, Info: store.InfoRunning})
	env.queue.set(&models.Job{ID: "retrying", State: models.JobStateRetry, Info: "redis: write failed"})
	env.queue.set(&models.Job{ID: "failed", State: models.JobStateFailure, Info: store.InfoFailed})
	failed := models.ErrorResult(services.MsgInputNotFound)
	env.queue.set(&models.Job{ID: "done-error", State: models.JobStateSuccess, Result: &failed})

	testCases := []struct {
		id   string
		want string
	}{
		{"unknown", `{"state":"PENDING","status":"Task is waiting to be processed"}`},
		{"running", `{"state":"RUNNING","status":"Task is being processed"}`},
		{"retrying", `{"state":"RETRY","status":"redis: write failed"}`},
		{"failed", `{"state":"FAILURE","status":"Task failed"}`},
		{"done-error", `{"state":"SUCCESS","result":{"status":"error","message":"Input file not found"}}`},
	}
	for _, tc := range testCases {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/status/"+tc.id, nil))
		assert.Equal(t, http.StatusOK, rec.Code, tc.id)
		assert.JSONEq(t, tc.want, rec.Body.String(), tc.id)
	}
}

func TestStatusHandler_BackendError(t *testing.T) {
	env := newTestEnv(t)
	env.queue.lookupErr = errors.New("redis unavailable")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/status/abc", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDownloadHandler(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.blobs.Put(context.Background(), store.AreaOutputs, "song_converted.mp3", strings.NewReader("ID3audio"))
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/download/song_converted.mp3", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ID3audio", rec.Body.String())
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=song_converted.mp3", rec.Header().Get("Content-Disposition"))
}

func TestDownloadHandler_NotFound(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(env.outputDir), "secret.txt"), []byte("s"), 0o600))

	for _, p := range []string{"/download/missing.mp3", "/download/..", "/download/../secret.txt", "/download/a/b.mp3"} {
		rec := env.do(httptest.NewRequest(http.MethodGet, p, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, p)
		assert.JSONEq(t, `{"error":"File not found","code":"not_found"}`, rec.Body.String(), p)
	}
}

func TestMetricsRoute(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusAccepted, env.do(uploadRequest(t, "file", "song.wav", []byte("x"))).Code)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `audioconv_uploads_total{outcome="accepted"} 1`)
	assert.Contains(t, rec.Body.String(), "audioconv_jobs_enqueued_total 1")
}

// TestEndToEnd submits a file, runs the job the way the worker would and
// follows the links a client would follow.
func TestEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(uploadRequest(t, "file", "song.wav", []byte("RIFF....WAVE")))
	require.Equal(t, http.StatusAccepted, rec.Code)
	taskID := decode(t, rec)["task_id"].(string)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/status/"+taskID, nil))
	assert.JSONEq(t, `{"state":"PENDING","status":"Task is waiting to be processed"}`, rec.Body.String())

	runner := services.NewConversionService(services.ConversionServiceDeps{
		Blobs:  env.blobs,
		Suffix: "_converted",
	})
	result := runner.Convert(context.Background(), env.queue.submitted[0].Input)
	env.queue.set(&models.Job{ID: taskID, State: models.JobStateSuccess, Result: &result})

	rec = env.do(httptest.NewRequest(http.MethodGet, "/status/"+taskID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"state":"SUCCESS","result":{"status":"completed","output_files":["outputs/song_converted.mp3"],"file_count":1}}`,
		rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/download/song_converted.mp3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RIFF....WAVE", rec.Body.String())
}
