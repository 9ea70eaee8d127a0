package store

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"audioconv/internal/models"
	"audioconv/internal/tasks"

	"github.com/google/uuid"
)

// --- Blob Store ---

// Area is a flat namespace inside the blob store.
type Area string

const (
	AreaUploads Area = "uploads"
	AreaOutputs Area = "outputs"
)

// Ref is the reference reported to clients for a stored blob, e.g. "outputs/song_converted.mp3".
func Ref(area Area, name string) string {
	return string(area) + "/" + name
}

type BlobInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// BlobWriter buffers a blob until Commit makes it visible under its name.
// Abort discards everything written so far.
type BlobWriter interface {
	io.Writer
	Commit() (ref string, err error)
	Abort() error
}

type BlobStore interface {
	Put(ctx context.Context, area Area, name string, r io.Reader) (ref string, err error)
	Create(ctx context.Context, area Area, name string) (BlobWriter, error)
	Open(ctx context.Context, area Area, name string) (io.ReadCloser, BlobInfo, error)
	Exists(ctx context.Context, area Area, name string) (bool, error)
	Remove(ctx context.Context, area Area, name string) error
}

// --- Task Queue ---

// TaskQueue owns job identity and state. Submit returns the job id;
// Lookup never fails for an unknown id, it reports the job as pending.
type TaskQueue interface {
	Submit(ctx context.Context, payload tasks.ConversionPayload) (string, error)
	Lookup(ctx context.Context, id string) (*models.Job, error)
	Close() error
}

// --- Job Store ---

// JobRecordParams holds parameters for recording a job event.
type JobRecordParams struct {
	JobID    uuid.UUID
	TaskType string
	InputRef string
	Filename string
	Queue    string
	Status   string
}

type JobStore interface {
	RecordJobEnqueue(ctx context.Context, params JobRecordParams) error
	UpdateJobResult(ctx context.Context, jobID uuid.UUID, status string, result json.RawMessage) error
	ListJobs(ctx context.Context, limit, offset int) ([]*models.JobRecord, error)
}
