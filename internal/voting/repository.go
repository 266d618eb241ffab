package voting

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/electcore/electcore/internal/platform/db"
	"github.com/electcore/electcore/internal/shared"
)

// PGRepository stores votes in Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// InsertVote relies on UNIQUE (voter_id, election_id); there is no prior read.
func (r *PGRepository) InsertVote(ctx context.Context, vote Vote) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO votes (voter_id, candidate_id, election_id, cast_at)
VALUES ($1, $2, $3, $4)
RETURNING id`, vote.VoterID, vote.CandidateID, vote.ElectionID, vote.CastAt).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("voting: voter %d election %d: %w", vote.VoterID, vote.ElectionID, shared.ErrAlreadyVoted)
	}
	if db.IsForeignKeyViolation(err) {
		return 0, fmt.Errorf("voting: candidate %d: %w", vote.CandidateID, shared.ErrInvalidCandidate)
	}
	if err != nil {
		return 0, shared.StoreFailure("voting: insert vote", err)
	}
	return id, nil
}

// Tally counts votes per candidate of the election.
func (r *PGRepository) Tally(ctx context.Context, electionID int64) ([]TallyRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.name, COUNT(v.id)
FROM candidates c
LEFT JOIN votes v ON v.candidate_id = c.id AND v.election_id = c.election_id
WHERE c.election_id = $1
GROUP BY c.id, c.name
ORDER BY COUNT(v.id) DESC, c.id ASC`, electionID)
	if err != nil {
		return nil, shared.StoreFailure("voting: tally", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TallyRow, error) {
		var t TallyRow
		err := row.Scan(&t.CandidateID, &t.Name, &t.Votes)
		return t, err
	})
	if err != nil {
		return nil, shared.StoreFailure("voting: tally", err)
	}
	return out, nil
}
