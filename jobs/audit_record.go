package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/electcore/electcore/internal/jobs"
	"github.com/electcore/electcore/internal/shared"
)

// AuditSink stores audit events.
type AuditSink interface {
	Record(ctx context.Context, event shared.AuditEvent) error
}

// AuditRecordJob drains the audit queue into the sink.
type AuditRecordJob struct {
	Sink    AuditSink
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditRecordJob wires the audit persistence handler.
func NewAuditRecordJob(sink AuditSink, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRecordJob {
	return &AuditRecordJob{Sink: sink, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAuditRecord tasks.
func (j *AuditRecordJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sink == nil {
		return errors.New("audit record: handler not configured")
	}
	var event shared.AuditEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		j.logger().Warn("audit record: bad payload", slog.Any("error", err))
		return fmt.Errorf("audit record: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskAuditRecord)
	defer func() { err = tracker.End(err) }()

	if err := j.Sink.Record(ctx, event); err != nil {
		j.logger().Error("audit record", slog.String("event_id", event.ID), slog.String("action", event.Action), slog.Any("error", err))
		return err
	}
	j.Metrics.AddAuditEvent(event.Outcome)
	return nil
}

func (j *AuditRecordJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
