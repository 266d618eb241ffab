package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electcore/electcore/internal/elections"
	jobmetrics "github.com/electcore/electcore/internal/jobs"
	"github.com/electcore/electcore/internal/shared"
	"github.com/electcore/electcore/internal/voting"
)

type memorySink struct {
	events []shared.AuditEvent
	err    error
}

func (m *memorySink) Record(ctx context.Context, event shared.AuditEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func TestNewAuditRecordTaskRequiresID(t *testing.T) {
	_, err := NewAuditRecordTask(shared.AuditEvent{Action: "vote.cast"})
	require.Error(t, err)

	task, err := NewAuditRecordTask(shared.AuditEvent{ID: "e1", Action: "vote.cast"})
	require.NoError(t, err)
	assert.Equal(t, TaskAuditRecord, task.Type())
}

func TestAuditRecordJobPersistsEvent(t *testing.T) {
	sink := &memorySink{}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewAuditRecordJob(sink, nil, metrics)

	task, err := NewAuditRecordTask(shared.AuditEvent{ID: "e1", PrincipalID: 3, Action: "vote.cast", Outcome: shared.OutcomeAllowed})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sink.events, 1)
	assert.Equal(t, int64(3), sink.events[0].PrincipalID)

	sink.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), task))
}

func TestAuditRecordJobSkipsMalformedPayload(t *testing.T) {
	job := NewAuditRecordJob(&memorySink{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskAuditRecord, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type stubEnded struct {
	from, to time.Time
	items    []elections.Election
}

func (s *stubEnded) ListEnded(ctx context.Context, from, to time.Time) ([]elections.Election, error) {
	s.from, s.to = from, to
	return s.items, nil
}

type stubTally struct {
	warmed []int64
}

func (s *stubTally) Results(ctx context.Context, electionID int64) ([]voting.TallyRow, error) {
	s.warmed = append(s.warmed, electionID)
	return nil, nil
}

func TestTallyWarmupJobWarmsEndedElections(t *testing.T) {
	ended := &stubEnded{items: []elections.Election{{ID: 4}, {ID: 9}}}
	tally := &stubTally{}
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	job := NewTallyWarmupJob(ended, tally, nil, metrics)
	now := time.Date(2026, 11, 4, 6, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	payload, _ := json.Marshal(TallyWarmupPayload{LookbackHours: 6})
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskTallyWarmup, payload)))

	assert.Equal(t, []int64{4, 9}, tally.warmed)
	assert.Equal(t, now.Add(-6*time.Hour), ended.from)
	assert.Equal(t, now, ended.to)

	count, err := testutil.GatherAndCount(registry, "electcore_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsHealthHandler(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueAudit, Pending: 3}}, nil).MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"audit","pending":3}`, rr.Body.String())

	r = chi.NewRouter()
	NewHandler(stubInspector{err: errors.New("no redis")}, nil).MountRoutes(r)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
