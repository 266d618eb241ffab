package voting

import (
	"sort"
	"time"
)

// Vote is one cast ballot. At most one exists per (voter, election).
type Vote struct {
	ID          int64     `json:"id"`
	VoterID     int64     `json:"voter_id"`
	CandidateID int64     `json:"candidate_id"`
	ElectionID  int64     `json:"election_id"`
	CastAt      time.Time `json:"cast_at"`
}

// TallyRow is the vote count of one candidate.
type TallyRow struct {
	CandidateID int64  `json:"candidate_id"`
	Name        string `json:"name"`
	Votes       int64  `json:"votes"`
}

// SortTally orders rows by votes descending, then candidate id ascending.
func SortTally(rows []TallyRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Votes != rows[j].Votes {
			return rows[i].Votes > rows[j].Votes
		}
		return rows[i].CandidateID < rows[j].CandidateID
	})
}
