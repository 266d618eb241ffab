// Package voting records ballots and computes election tallies.
package voting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/electcore/electcore/internal/elections"
	"github.com/electcore/electcore/internal/identity"
	"github.com/electcore/electcore/internal/policy"
	"github.com/electcore/electcore/internal/shared"
)

// Repository persists votes.
type Repository interface {
	// InsertVote stores the vote in a single statement guarded by the
	// (voter, election) uniqueness constraint. A duplicate yields ErrAlreadyVoted.
	InsertVote(ctx context.Context, vote Vote) (int64, error)
	// Tally counts votes per candidate, zero-vote candidates included.
	Tally(ctx context.Context, electionID int64) ([]TallyRow, error)
}

// ElectionReader is the slice of the elections collaborator used here.
type ElectionReader interface {
	Get(ctx context.Context, id int64) (elections.Election, error)
	CandidateInElection(ctx context.Context, electionID, candidateID int64) (bool, error)
}

// Gate evaluates access decisions.
type Gate interface {
	Evaluate(ctx context.Context, principal identity.Principal, action string, resource policy.Resource, attrs map[string]string) (policy.Decision, error)
}

// AuditPort receives vote events.
type AuditPort interface {
	Emit(ctx context.Context, event shared.AuditEvent)
}

// Recorder counts cast outcomes.
type Recorder interface {
	ObserveVote(outcome string)
}

// Service implements casting and tallying.
type Service struct {
	repo      Repository
	elections ElectionReader
	gate      Gate
	cache     *TallyCache
	audit     AuditPort
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// Config wires optional collaborators.
type Config struct {
	Cache    *TallyCache
	Audit    AuditPort
	Recorder Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, electionReader ElectionReader, gate Gate, cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		repo:      repo,
		elections: electionReader,
		gate:      gate,
		cache:     cfg.Cache,
		audit:     cfg.Audit,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// Cast records a vote for candidateID in electionID on behalf of voter.
// Checks run in order: election exists, active window, access decision,
// candidate membership, then the atomic insert. A closed election reports
// ErrNotActive whoever the caller is.
func (s *Service) Cast(ctx context.Context, voter identity.Principal, electionID, candidateID int64) (int64, error) {
	id, err := s.cast(ctx, voter, electionID, candidateID)
	s.record(ctx, voter, electionID, candidateID, id, err)
	return id, err
}

func (s *Service) cast(ctx context.Context, voter identity.Principal, electionID, candidateID int64) (int64, error) {
	election, err := s.elections.Get(ctx, electionID)
	if err != nil {
		return 0, err
	}
	now := s.now()
	if !election.Window().Contains(now) {
		return 0, fmt.Errorf("voting: election %d: %w", electionID, shared.ErrNotActive)
	}
	decision, err := s.gate.Evaluate(ctx, voter, shared.PermVoteCast,
		policy.Resource{Type: shared.ResourceElection, ID: election.ID},
		map[string]string{"election_district": election.District})
	if err != nil {
		return 0, err
	}
	if err := decision.Err(); err != nil {
		return 0, err
	}
	ok, err := s.elections.CandidateInElection(ctx, electionID, candidateID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("voting: candidate %d in election %d: %w", candidateID, electionID, shared.ErrInvalidCandidate)
	}
	return s.repo.InsertVote(ctx, Vote{
		VoterID:     voter.ID,
		CandidateID: candidateID,
		ElectionID:  electionID,
		CastAt:      now,
	})
}

func (s *Service) record(ctx context.Context, voter identity.Principal, electionID, candidateID, voteID int64, err error) {
	outcome := outcomeFor(err)
	if s.recorder != nil {
		s.recorder.ObserveVote(outcome)
	}
	if s.audit == nil {
		return
	}
	event := shared.AuditEvent{
		PrincipalID: voter.ID,
		Action:      shared.PermVoteCast,
		Resource:    shared.ResourceRef(shared.ResourceElection, electionID),
		Outcome:     shared.OutcomeAllowed,
		Meta:        map[string]any{"candidate_id": candidateID},
	}
	switch {
	case err == nil:
		event.Meta["vote_id"] = voteID
	case outcome == "error":
		event.Outcome = shared.OutcomeFailed
		event.Reason = err.Error()
	default:
		event.Outcome = shared.OutcomeDenied
		event.Reason = err.Error()
	}
	s.audit.Emit(ctx, event)
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, shared.ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, shared.ErrNotActive):
		return "not_active"
	case errors.Is(err, shared.ErrInvalidCandidate):
		return "invalid_candidate"
	case errors.Is(err, shared.ErrForbidden):
		return "forbidden"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Results returns the tally of an election ordered by votes descending and
// candidate id ascending. Tallies of ended elections are served from the cache.
func (s *Service) Results(ctx context.Context, electionID int64) ([]TallyRow, error) {
	election, err := s.elections.Get(ctx, electionID)
	if err != nil {
		return nil, err
	}
	load := func(ctx context.Context) ([]TallyRow, error) {
		rows, err := s.repo.Tally(ctx, electionID)
		if err != nil {
			return nil, err
		}
		SortTally(rows)
		return rows, nil
	}
	if s.cache == nil || !election.Window().Ended(s.now()) {
		return load(ctx)
	}
	return s.cache.Load(ctx, electionID, load)
}

// ResultsFor is Results gated by the results.view permission.
func (s *Service) ResultsFor(ctx context.Context, principal identity.Principal, electionID int64) ([]TallyRow, error) {
	decision, err := s.gate.Evaluate(ctx, principal, shared.PermResultsView,
		policy.Resource{Type: shared.ResourceElection, ID: electionID}, nil)
	if err != nil {
		return nil, err
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}
	return s.Results(ctx, electionID)
}
