package models

/*
Job state and record status constants. JobState is the vocabulary reported by
the status endpoint; record statuses are what the job record store persists.
*/

// JobState is the externally visible state of a conversion job.
type JobState string

const (
	JobStatePending JobState = "PENDING"
	JobStateRunning JobState = "RUNNING"
	JobStateRetry   JobState = "RETRY"
	JobStateSuccess JobState = "SUCCESS"
	JobStateFailure JobState = "FAILURE"
)

// IsTerminal reports whether no further transition can happen.
func (s JobState) IsTerminal() bool {
	return s == JobStateSuccess || s == JobStateFailure
}

// Job record status constants
const (
	JobStatusEnqueued  = "enqueued"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Task type constants
const (
	TaskTypeConversion = "conversion"
)
