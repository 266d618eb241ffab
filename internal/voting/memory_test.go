package voting

import (
	"context"
	"fmt"
	"sync"

	"github.com/electcore/electcore/internal/elections"
	"github.com/electcore/electcore/internal/rbac"
	"github.com/electcore/electcore/internal/shared"
)

type voteKey struct{ voter, election int64 }

type memoryVotes struct {
	mu          sync.Mutex
	votes       map[voteKey]Vote
	nextID      int64
	candidates  map[int64][]elections.Candidate
	tallyCalls  int
	insertCalls int
}

func newMemoryVotes() *memoryVotes {
	return &memoryVotes{votes: make(map[voteKey]Vote), candidates: make(map[int64][]elections.Candidate)}
}

func (m *memoryVotes) InsertVote(ctx context.Context, vote Vote) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	key := voteKey{vote.VoterID, vote.ElectionID}
	if _, exists := m.votes[key]; exists {
		return 0, fmt.Errorf("duplicate: %w", shared.ErrAlreadyVoted)
	}
	m.nextID++
	vote.ID = m.nextID
	m.votes[key] = vote
	return vote.ID, nil
}

func (m *memoryVotes) Tally(ctx context.Context, electionID int64) ([]TallyRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tallyCalls++
	counts := make(map[int64]int64)
	for _, v := range m.votes {
		if v.ElectionID == electionID {
			counts[v.CandidateID]++
		}
	}
	var rows []TallyRow
	for _, c := range m.candidates[electionID] {
		rows = append(rows, TallyRow{CandidateID: c.ID, Name: c.Name, Votes: counts[c.ID]})
	}
	return rows, nil
}

type memoryElections struct {
	elections  map[int64]elections.Election
	candidates map[int64][]elections.Candidate
}

func (m *memoryElections) Get(ctx context.Context, id int64) (elections.Election, error) {
	e, ok := m.elections[id]
	if !ok {
		return elections.Election{}, fmt.Errorf("election %d: %w", id, shared.ErrNotFound)
	}
	return e, nil
}

func (m *memoryElections) Window(ctx context.Context, id int64) (elections.Window, error) {
	e, err := m.Get(ctx, id)
	if err != nil {
		return elections.Window{}, err
	}
	return e.Window(), nil
}

func (m *memoryElections) CandidateInElection(ctx context.Context, electionID, candidateID int64) (bool, error) {
	for _, c := range m.candidates[electionID] {
		if c.ID == candidateID {
			return true, nil
		}
	}
	return false, nil
}

// staticRoles gives every principal in the map the listed permissions.
type staticRoles struct {
	perms map[int64][]string
}

func (s staticRoles) CurrentRoles(ctx context.Context, userID int64) ([]rbac.Role, error) {
	if _, ok := s.perms[userID]; !ok {
		return nil, nil
	}
	return []rbac.Role{{ID: userID, Kind: rbac.RoleVoter, Name: "Voter"}}, nil
}

func (s staticRoles) PermissionsForRoles(ctx context.Context, roleIDs []int64) ([]string, error) {
	var out []string
	for _, id := range roleIDs {
		out = append(out, s.perms[id]...)
	}
	return out, nil
}

func (s staticRoles) PoliciesFor(ctx context.Context, resourceType string) ([]rbac.AccessPolicy, error) {
	return nil, nil
}

func (s staticRoles) ListLabels(ctx context.Context) ([]rbac.SecurityLabel, error) {
	return nil, nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []shared.AuditEvent
}

func (r *recordingAudit) Emit(ctx context.Context, event shared.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *countingRecorder) ObserveVote(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = make(map[string]int)
	}
	c.outcomes[outcome]++
}
