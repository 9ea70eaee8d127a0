package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job is a snapshot of a queued conversion as reported by the task queue.
type Job struct {
	ID     string
	State  JobState
	Result *ConversionResult // only for JobStateSuccess
	Info   string
}

// ResultStatus tags a ConversionResult.
type ResultStatus string

const (
	ResultStatusCompleted ResultStatus = "completed"
	ResultStatusError     ResultStatus = "error"
)

// ConversionResult is the terminal payload of every conversion run.
// A completed result carries the output references, an error result a message.
type ConversionResult struct {
	Status      ResultStatus `json:"status"`
	OutputFiles []string     `json:"output_files,omitempty"`
	FileCount   int          `json:"file_count"`
	Message     string       `json:"message,omitempty"`
}

// CompletedResult builds the success variant.
func CompletedResult(outputFiles []string) ConversionResult {
	if outputFiles == nil {
		outputFiles = []string{}
	}
	return ConversionResult{
		Status:      ResultStatusCompleted,
		OutputFiles: outputFiles,
		FileCount:   len(outputFiles),
	}
}

// ErrorResult builds the error variant.
func ErrorResult(message string) ConversionResult {
	return ConversionResult{Status: ResultStatusError, Message: message}
}

// IsError reports whether the run failed.
func (r ConversionResult) IsError() bool {
	return r.Status == ResultStatusError
}

// MarshalJSON writes only the fields that belong to the variant.
func (r ConversionResult) MarshalJSON() ([]byte, error) {
	if r.Status == ResultStatusError {
		return json.Marshal(struct {
			Status  ResultStatus `json:"status"`
			Message string       `json:"message"`
		}{r.Status, r.Message})
	}
	files := r.OutputFiles
	if files == nil {
		files = []string{}
	}
	return json.Marshal(struct {
		Status      ResultStatus `json:"status"`
		OutputFiles []string     `json:"output_files"`
		FileCount   int          `json:"file_count"`
		Message     string       `json:"message,omitempty"`
	}{r.Status, files, r.FileCount, r.Message})
}

// JobRecord mirrors the conversion_jobs table schema.
type JobRecord struct {
	ID        int64           `db:"id"`
	JobID     uuid.UUID       `db:"job_id"` // Asynq Task ID
	TaskType  string          `db:"task_type"`
	InputRef  string          `db:"input_ref"`
	Filename  string          `db:"filename"`
	Queue     string          `db:"queue"`
	Status    string          `db:"status"`
	Result    json.RawMessage `db:"result"` // NULL until the worker finishes
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}
