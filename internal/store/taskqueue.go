package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"audioconv/internal/models"
	"audioconv/internal/tasks"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
)

// Info strings reported for states that carry no error text.
const (
	InfoRunning = "Task is being processed"
	InfoFailed  = "Task failed"
)

// TaskQueueOptions configures AsynqTaskQueue.
type TaskQueueOptions struct {
	BrokerURL string // Redis holding the queue, task state and results
	Queue     string
	Retention time.Duration
	MaxRetry  int
}

// Ensure it implements TaskQueue
var _ TaskQueue = (*AsynqTaskQueue)(nil)

// AsynqTaskQueue is the Redis-backed TaskQueue. Client and inspector share
// the broker connection because asynq stores results next to the task.
type AsynqTaskQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
	retention time.Duration
	maxRetry  int
}

// ParseRedisConnOpt accepts redis:// style URIs as well as a bare host:port.
func ParseRedisConnOpt(uri string) (asynq.RedisConnOpt, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if strings.Contains(uri, "://") {
		opt, err := asynq.ParseRedisURI(uri)
		if err != nil {
			return nil, fmt.Errorf("parse redis uri %q: %w", uri, err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{Addr: uri}, nil
}

func NewAsynqTaskQueue(opts TaskQueueOptions) (*AsynqTaskQueue, error) {
	if opts.Queue == "" {
		return nil, fmt.Errorf("queue name cannot be empty for AsynqTaskQueue")
	}
	brokerOpt, err := ParseRedisConnOpt(opts.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("broker: %w", err)
	}
	return &AsynqTaskQueue{
		client:    asynq.NewClient(brokerOpt),
		inspector: asynq.NewInspector(brokerOpt),
		queue:     opts.Queue,
		retention: opts.Retention,
		maxRetry:  opts.MaxRetry,
	}, nil
}

func (q *AsynqTaskQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close())
}

// Ping checks that the broker is reachable.
func (q *AsynqTaskQueue) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := q.inspector.Queues()
	return err
}

// Submit enqueues a conversion task and returns its id.
func (q *AsynqTaskQueue) Submit(ctx context.Context, payload tasks.ConversionPayload) (string, error) {
	opts := []asynq.Option{
		asynq.Queue(q.queue),
		asynq.MaxRetry(q.maxRetry),
	}
	// Without retention completed tasks are deleted and their result is lost.
	if q.retention > 0 {
		opts = append(opts, asynq.Retention(q.retention))
	}
	task, err := tasks.NewConversionTask(payload, opts...)
	if err != nil {
		return "", err
	}

	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue conversion of %q: %w", payload.Input, err)
	}
	log.WithFields(log.Fields{"task_id": info.ID, "queue": info.Queue, "input": payload.Input}).Debug("Enqueued conversion task")
	return info.ID, nil
}

// Lookup reports the current state of a job.
func (q *AsynqTaskQueue) Lookup(ctx context.Context, id string) (*models.Job, error) {
	info, err := q.inspector.GetTaskInfo(q.queue, id)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return &models.Job{ID: id, State: models.JobStatePending}, nil
		}
		return nil, fmt.Errorf("lookup task %s: %w", id, err)
	}
	return JobFromTaskInfo(info)
}

// ListTasks returns up to limit jobs currently in the given asynq state
// ("pending", "active", "scheduled", "retry", "archived", "completed").
func (q *AsynqTaskQueue) ListTasks(ctx context.Context, state string, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	page := asynq.PageSize(limit)

	var infos []*asynq.TaskInfo
	var err error
	switch state {
	case "pending":
		infos, err = q.inspector.ListPendingTasks(q.queue, page)
	case "active":
		infos, err = q.inspector.ListActiveTasks(q.queue, page)
	case "scheduled":
		infos, err = q.inspector.ListScheduledTasks(q.queue, page)
	case "retry":
		infos, err = q.inspector.ListRetryTasks(q.queue, page)
	case "archived":
		infos, err = q.inspector.ListArchivedTasks(q.queue, page)
	case "completed":
		infos, err = q.inspector.ListCompletedTasks(q.queue, page)
	default:
		return nil, fmt.Errorf("unknown task state %q", state)
	}
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s tasks: %w", state, err)
	}

	jobs := make([]*models.Job, 0, len(infos))
	for _, info := range infos {
		job, err := JobFromTaskInfo(info)
		if err != nil {
			log.Warnf("Skipping task %s: %v", info.ID, err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// JobFromTaskInfo maps asynq's state vocabulary onto models.JobState.
func JobFromTaskInfo(info *asynq.TaskInfo) (*models.Job, error) {
	job := &models.Job{ID: info.ID}
	switch info.State {
	case asynq.TaskStateActive:
		job.State = models.JobStateRunning
		job.Info = InfoRunning
	case asynq.TaskStateRetry:
		job.State = models.JobStateRetry
		job.Info = info.LastErr
	case asynq.TaskStateCompleted:
		job.State = models.JobStateSuccess
		if len(info.Result) > 0 {
			var result models.ConversionResult
			if err := json.Unmarshal(info.Result, &result); err != nil {
				return nil, fmt.Errorf("decode result of task %s: %w", info.ID, err)
			}
			job.Result = &result
		}
	case asynq.TaskStateArchived:
		job.State = models.JobStateFailure
		job.Info = info.LastErr
		if job.Info == "" {
			job.Info = InfoFailed
		}
	default: // pending, scheduled, aggregating
		job.State = models.JobStatePending
	}
	return job, nil
}
