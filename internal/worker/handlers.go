// Package worker holds the asynq handlers executed by the conversion worker.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"audioconv/internal/models"
	"audioconv/internal/store"
	"audioconv/internal/tasks"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
)

// Runner executes one conversion and always yields a terminal result.
type Runner interface {
	Convert(ctx context.Context, input string) models.ConversionResult
}

// ConversionDeps holds dependencies for the conversion handler.
type ConversionDeps struct {
	Runner   Runner
	JobStore store.JobStore // optional
}

// RegisterHandlers wires every task type onto mux.
func RegisterHandlers(mux *asynq.ServeMux, deps ConversionDeps) {
	log.Infof("Registering ConversionJob handler (%s)", tasks.TypeConversionJob)
	mux.HandleFunc(tasks.TypeConversionJob, HandleConversionJob(deps))
}

// resultWriter is the part of *asynq.ResultWriter the handler needs.
type resultWriter interface {
	Write(b []byte) (int, error)
	TaskID() string
}

// HandleConversionJob returns the asynq handler for tasks.TypeConversionJob.
// The conversion outcome, success or error, is stored as the task result;
// the handler itself only fails when that result cannot be persisted.
func HandleConversionJob(deps ConversionDeps) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var w resultWriter
		if rw := t.ResultWriter(); rw != nil {
			w = rw
		}
		return handleConversion(ctx, deps, t.Payload(), w)
	}
}

func handleConversion(ctx context.Context, deps ConversionDeps, payload []byte, w resultWriter) error {
	taskID := ""
	if w != nil {
		taskID = w.TaskID()
	}
	logger := log.WithField("task_id", taskID)

	var result models.ConversionResult
	p, err := tasks.DecodeConversionPayload(payload)
	if err != nil {
		logger.Errorf("Rejecting conversion task: %v", err)
		result = models.ErrorResult(fmt.Sprintf("invalid task payload: %v", err))
	} else {
		logger = logger.WithField("input", p.Input)
		logger.Info("Starting conversion job")
		result = deps.Runner.Convert(ctx, p.Input)
	}

	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode conversion result: %w", err)
	}
	if w != nil {
		if _, err := w.Write(b); err != nil {
			return fmt.Errorf("write conversion result for task %s: %w", taskID, err)
		}
	}

	status := models.JobStatusCompleted
	if result.IsError() {
		status = models.JobStatusFailed
		logger.Warnf("Conversion finished with error: %s", result.Message)
	} else {
		logger.WithField("outputs", result.OutputFiles).Info("Conversion finished")
	}
	recordResult(ctx, deps.JobStore, taskID, status, b)
	return nil
}

// recordResult mirrors the outcome into the job history. Failures are logged only.
func recordResult(ctx context.Context, js store.JobStore, taskID, status string, result []byte) {
	if js == nil || taskID == "" {
		return
	}
	jobID, err := uuid.Parse(taskID)
	if err != nil {
		log.Debugf("Task id %q is not a UUID, skipping job history update", taskID)
		return
	}
	if err := js.UpdateJobResult(ctx, jobID, status, json.RawMessage(result)); err != nil {
		log.Warnf("Failed to update job history for %s: %v", taskID, err)
	}
}
