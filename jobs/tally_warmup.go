package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/electcore/electcore/internal/elections"
	jobmetrics "github.com/electcore/electcore/internal/jobs"
	"github.com/electcore/electcore/internal/voting"
)

// EndedElections lists elections that closed within a range.
type EndedElections interface {
	ListEnded(ctx context.Context, from, to time.Time) ([]elections.Election, error)
}

// TallySource computes (and caches) final results.
type TallySource interface {
	Results(ctx context.Context, electionID int64) ([]voting.TallyRow, error)
}

// TallyWarmupJob populates the tally cache right after elections close.
type TallyWarmupJob struct {
	Elections EndedElections
	Tally     TallySource
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewTallyWarmupJob wires dependencies for the warmup handler.
func NewTallyWarmupJob(ended EndedElections, tally TallySource, logger *slog.Logger, metrics *jobmetrics.Metrics) *TallyWarmupJob {
	return &TallyWarmupJob{
		Elections: ended,
		Tally:     tally,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskTallyWarmup tasks.
func (j *TallyWarmupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Elections == nil || j.Tally == nil {
		return errors.New("tally warmup: handler not configured")
	}
	var payload TallyWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.LookbackHours <= 0 {
		payload.LookbackHours = 24
	}

	tracker := j.Metrics.Track(TaskTallyWarmup)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.Int("lookback_hours", payload.LookbackHours))
	now := j.clock()
	ended, err := j.Elections.ListEnded(ctx, now.Add(-time.Duration(payload.LookbackHours)*time.Hour), now)
	if err != nil {
		logger.Error("load ended elections", slog.Any("error", err))
		return err
	}
	for _, e := range ended {
		electionCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		_, err := j.Tally.Results(electionCtx, e.ID)
		cancel()
		if err != nil {
			logger.Error("warm tally", slog.Int64("election_id", e.ID), slog.Any("error", err))
			return err
		}
	}
	logger.Info("completed tally warmup", slog.Int("elections", len(ended)), slog.Duration("duration", time.Since(now)))
	return nil
}

func (j *TallyWarmupJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
