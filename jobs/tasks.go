package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/electcore/electcore/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit events emitted by the access core.
	QueueAudit = "audit"

	// TaskAuditRecord persists one audit event.
	TaskAuditRecord = "audit:record"
	// TaskTallyWarmup caches final tallies of recently ended elections.
	TaskTallyWarmup = "tally:warmup"
)

// NewAuditRecordTask wraps an audit event. The event ID doubles as the task ID so
// a re-enqueued event is rejected by the queue instead of stored twice.
func NewAuditRecordTask(event shared.AuditEvent) (*asynq.Task, error) {
	if event.ID == "" {
		return nil, errors.New("jobs: audit event id required")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data,
		asynq.TaskID(event.ID),
		asynq.Queue(QueueAudit),
		asynq.MaxRetry(10),
		asynq.Retention(time.Hour),
	), nil
}

// TallyWarmupPayload bounds how far back ended elections are considered.
type TallyWarmupPayload struct {
	LookbackHours int `json:"lookback_hours"`
}

// NewTallyWarmupTask constructs the warmup task.
func NewTallyWarmupTask(payload TallyWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTallyWarmup, data, asynq.Queue(QueueDefault)), nil
}
