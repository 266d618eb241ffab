package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/electcore/electcore/internal/shared"
	"github.com/electcore/electcore/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
	err   error
	ctxOK bool
}

func (s *stubEnqueuer) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	s.ctxOK = ctx.Err() == nil
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "x", Queue: jobs.QueueAudit}, nil
}

func TestQueueEmitterStampsEvent(t *testing.T) {
	queue := &stubEnqueuer{}
	emitter := NewQueueEmitter(queue, nil)
	emitter.now = func() time.Time { return time.Date(2026, 11, 3, 10, 0, 0, 0, time.UTC) }

	ctx := shared.ContextWithRequestID(context.Background(), "req-42")
	emitter.Emit(ctx, shared.AuditEvent{PrincipalID: 7, Action: "vote.cast", Outcome: shared.OutcomeAllowed})

	if len(queue.tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(queue.tasks))
	}
	task := queue.tasks[0]
	if task.Type() != jobs.TaskAuditRecord {
		t.Fatalf("unexpected task type %q", task.Type())
	}
	var event shared.AuditEvent
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if event.ID == "" {
		t.Fatalf("expected generated event id")
	}
	if event.RequestID != "req-42" {
		t.Fatalf("expected request id from context, got %q", event.RequestID)
	}
	if !event.At.Equal(time.Date(2026, 11, 3, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %s", event.At)
	}
}

func TestQueueEmitterSwallowsErrorsAndCancellation(t *testing.T) {
	queue := &stubEnqueuer{err: errors.New("redis down")}
	emitter := NewQueueEmitter(queue, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	emitter.Emit(ctx, shared.AuditEvent{ID: "fixed", Action: "role_change.approve"})

	if len(queue.tasks) != 1 {
		t.Fatalf("expected enqueue attempt")
	}
	if !queue.ctxOK {
		t.Fatalf("expected enqueue context detached from cancelled request")
	}

	// A missing queue only logs.
	NewQueueEmitter(nil, nil).Emit(context.Background(), shared.AuditEvent{Action: "noop"})
	var nilEmitter *QueueEmitter
	nilEmitter.Emit(context.Background(), shared.AuditEvent{})
}
