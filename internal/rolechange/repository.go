package rolechange

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/electcore/electcore/internal/platform/db"
	"github.com/electcore/electcore/internal/rbac"
	"github.com/electcore/electcore/internal/shared"
)

// PGRepository stores requests in Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const requestColumns = `id, user_id, role_id, reason, status, created_at, processed_at, processed_by`

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	var status string
	if err := row.Scan(&req.ID, &req.UserID, &req.RoleID, &req.Reason, &status, &req.CreatedAt, &req.ProcessedAt, &req.ProcessedBy); err != nil {
		return Request{}, err
	}
	req.Status = Status(status)
	return req, nil
}

// Create inserts a request in the requested state.
func (r *PGRepository) Create(ctx context.Context, req Request) (Request, error) {
	created, err := scanRequest(r.pool.QueryRow(ctx, `INSERT INTO role_change_requests (user_id, role_id, reason, status, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+requestColumns, req.UserID, req.RoleID, req.Reason, string(StatusRequested), req.CreatedAt))
	if db.IsForeignKeyViolation(err) {
		return Request{}, fmt.Errorf("role %d: %w", req.RoleID, shared.ErrNotFound)
	}
	if err != nil {
		return Request{}, shared.StoreFailure("rolechange: create", err)
	}
	return created, nil
}

// Get loads a request by id.
func (r *PGRepository) Get(ctx context.Context, id int64) (Request, error) {
	req, err := scanRequest(r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM role_change_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, fmt.Errorf("role change request %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Request{}, shared.StoreFailure("rolechange: get", err)
	}
	return req, nil
}

// Decide performs a conditional update on status and, for approvals, appends the
// ledger grant inside the same transaction.
func (r *PGRepository) Decide(ctx context.Context, t Transition) (Request, error) {
	var decided Request
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		req, err := scanRequest(tx.QueryRow(ctx, `UPDATE role_change_requests
SET status = $2, processed_at = $3, processed_by = $4
WHERE id = $1 AND status = 'requested'
RETURNING `+requestColumns, t.RequestID, string(t.To), t.At, t.By))
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missingOrDecided(ctx, tx, t.RequestID)
		}
		if err != nil {
			return err
		}
		if t.To == StatusApproved {
			if _, err := rbac.InsertAssignment(ctx, tx, rbac.Assignment{
				RoleID: req.RoleID,
				UserID: req.UserID,
				Kind:   rbac.EntryGrant,
				At:     t.At,
				By:     t.By,
			}); err != nil {
				return err
			}
		}
		decided = req
		return nil
	})
	switch {
	case err == nil:
		return decided, nil
	case db.IsSerializationFailure(err):
		return Request{}, fmt.Errorf("role change request %d: %w: concurrent decision", t.RequestID, shared.ErrConflict)
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrStoreFailure):
		return Request{}, err
	default:
		return Request{}, shared.StoreFailure("rolechange: decide", err)
	}
}

func (r *PGRepository) missingOrDecided(ctx context.Context, tx pgx.Tx, id int64) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM role_change_requests WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("role change request %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("role change request %d is %s: %w", id, status, shared.ErrConflict)
}

// ListPending returns requested entries oldest first with the total count.
func (r *PGRepository) ListPending(ctx context.Context, limit, offset int) ([]Request, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM role_change_requests WHERE status = 'requested'`).Scan(&total); err != nil {
		return nil, 0, shared.StoreFailure("rolechange: count pending", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+` FROM role_change_requests
WHERE status = 'requested'
ORDER BY created_at, id
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, shared.StoreFailure("rolechange: list pending", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Request, error) {
		return scanRequest(row)
	})
	if err != nil {
		return nil, 0, shared.StoreFailure("rolechange: list pending", err)
	}
	return items, total, nil
}

// Recent returns the latest requests of any status, newest first.
func (r *PGRepository) Recent(ctx context.Context, limit int) ([]Request, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+` FROM role_change_requests
ORDER BY COALESCE(processed_at, created_at) DESC, id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, shared.StoreFailure("rolechange: recent", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Request, error) {
		return scanRequest(row)
	})
	if err != nil {
		return nil, shared.StoreFailure("rolechange: recent", err)
	}
	return items, nil
}
