package elections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/electcore/electcore/internal/shared"
)

// Repository reads elections from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const electionColumns = `id, name, start_time, end_time, COALESCE(district, '')`

func scanElection(row pgx.Row) (Election, error) {
	var e Election
	if err := row.Scan(&e.ID, &e.Name, &e.StartTime, &e.EndTime, &e.District); err != nil {
		return Election{}, err
	}
	return e, nil
}

// Get loads an election by id.
func (r *Repository) Get(ctx context.Context, id int64) (Election, error) {
	e, err := scanElection(r.pool.QueryRow(ctx, `SELECT `+electionColumns+` FROM elections WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Election{}, fmt.Errorf("election %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Election{}, shared.StoreFailure("elections: get", err)
	}
	return e, nil
}

// Window loads the active window of an election.
func (r *Repository) Window(ctx context.Context, id int64) (Window, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return Window{}, err
	}
	return e.Window(), nil
}

// ListActive returns elections whose window contains at, ordered by end time.
func (r *Repository) ListActive(ctx context.Context, at time.Time) ([]Election, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+electionColumns+` FROM elections
WHERE start_time <= $1 AND end_time >= $1
ORDER BY end_time, id`, at)
	if err != nil {
		return nil, shared.StoreFailure("elections: list active", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Election, error) {
		return scanElection(row)
	})
	if err != nil {
		return nil, shared.StoreFailure("elections: list active", err)
	}
	return out, nil
}

// ListEnded returns elections whose end time falls within [from, to].
func (r *Repository) ListEnded(ctx context.Context, from, to time.Time) ([]Election, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+electionColumns+` FROM elections
WHERE end_time >= $1 AND end_time <= $2
ORDER BY end_time, id`, from, to)
	if err != nil {
		return nil, shared.StoreFailure("elections: list ended", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Election, error) {
		return scanElection(row)
	})
	if err != nil {
		return nil, shared.StoreFailure("elections: list ended", err)
	}
	return out, nil
}

// Candidates lists the candidates of an election ordered by id.
func (r *Repository) Candidates(ctx context.Context, electionID int64) ([]Candidate, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, election_id, name FROM candidates WHERE election_id = $1 ORDER BY id`, electionID)
	if err != nil {
		return nil, shared.StoreFailure("elections: candidates", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Candidate, error) {
		var c Candidate
		err := row.Scan(&c.ID, &c.ElectionID, &c.Name)
		return c, err
	})
	if err != nil {
		return nil, shared.StoreFailure("elections: candidates", err)
	}
	return out, nil
}

// CandidateInElection reports whether candidateID belongs to electionID.
func (r *Repository) CandidateInElection(ctx context.Context, electionID, candidateID int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM candidates WHERE id = $1 AND election_id = $2)`, candidateID, electionID).Scan(&ok)
	if err != nil {
		return false, shared.StoreFailure("elections: candidate membership", err)
	}
	return ok, nil
}
