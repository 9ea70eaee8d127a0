package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Defines constants for task types used in Asynq.

const (
	// TypeConversionJob is the task type for converting an uploaded file.
	TypeConversionJob = "conversion:audio"
)

// ConversionPayload is the body of a TypeConversionJob task.
type ConversionPayload struct {
	Input    string `json:"input"`    // key of the upload in the uploads area
	Filename string `json:"filename"` // original client filename
}

// NewConversionTask encodes the payload into an asynq task.
func NewConversionTask(p ConversionPayload, opts ...asynq.Option) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode conversion payload: %w", err)
	}
	return asynq.NewTask(TypeConversionJob, b, opts...), nil
}

// DecodeConversionPayload is the inverse of NewConversionTask.
func DecodeConversionPayload(b []byte) (ConversionPayload, error) {
	var p ConversionPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("decode conversion payload: %w", err)
	}
	if p.Input == "" {
		return p, fmt.Errorf("decode conversion payload: missing input")
	}
	return p, nil
}
