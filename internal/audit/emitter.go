// Package audit emits, stores and lists audit events of the access core.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/electcore/electcore/internal/shared"
	"github.com/electcore/electcore/jobs"
)

const enqueueTimeout = 2 * time.Second

// Enqueuer submits tasks to the background queue. *jobs.Client satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueEmitter hands audit events to the worker queue. Emission never blocks the
// caller for long and never fails the gated operation: errors are only logged.
type QueueEmitter struct {
	queue  Enqueuer
	logger *slog.Logger
	now    func() time.Time
}

// NewQueueEmitter constructs a QueueEmitter.
func NewQueueEmitter(queue Enqueuer, logger *slog.Logger) *QueueEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueEmitter{queue: queue, logger: logger, now: time.Now}
}

// Emit stamps and enqueues the event.
func (e *QueueEmitter) Emit(ctx context.Context, event shared.AuditEvent) {
	if e == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = e.now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = shared.RequestIDFromContext(ctx)
	}
	logger := e.logger.With(
		slog.String("event_id", event.ID),
		slog.String("action", event.Action),
		slog.String("outcome", event.Outcome),
	)
	if e.queue == nil {
		logger.Info("audit event", slog.Int64("principal_id", event.PrincipalID), slog.String("resource", event.Resource))
		return
	}
	task, err := jobs.NewAuditRecordTask(event)
	if err != nil {
		logger.Error("audit emit: build task", slog.Any("error", err))
		return
	}
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()
	if _, err := e.queue.Enqueue(enqueueCtx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			logger.Debug("audit emit: duplicate event")
			return
		}
		logger.Error("audit emit: enqueue", slog.Any("error", err))
	}
}
