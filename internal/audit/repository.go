package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/electcore/electcore/internal/shared"
)

// PGRepository builds the trail from role_change_requests and role_assignments.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const trailSQL = `SELECT at, actor_id, action, entity, entity_id, user_id, role_id FROM (
	SELECT created_at AS at, user_id AS actor_id, 'role_change.submit' AS action,
		'role_change' AS entity, id AS entity_id, user_id, role_id
	FROM role_change_requests
	UNION ALL
	SELECT processed_at, processed_by, 'role_change.' || status,
		'role_change', id, user_id, role_id
	FROM role_change_requests WHERE processed_at IS NOT NULL
	UNION ALL
	SELECT at, by_user, 'assignment.' || kind,
		'role_assignment', id, user_id, role_id
	FROM role_assignments
) trail
WHERE ($1::timestamptz IS NULL OR at >= $1)
  AND ($2::timestamptz IS NULL OR at <= $2)
  AND ($3::bigint IS NULL OR user_id = $3)
ORDER BY at DESC, entity DESC, entity_id DESC
LIMIT $4 OFFSET $5`

// Trail runs the combined history query.
func (r *PGRepository) Trail(ctx context.Context, q TrailQuery) ([]TrailRow, error) {
	rows, err := r.pool.Query(ctx, trailSQL, toPgTime(q.From), toPgTime(q.To), optionalID(q.UserID), q.Limit, q.Offset)
	if err != nil {
		return nil, shared.StoreFailure("audit: trail", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TrailRow, error) {
		var tr TrailRow
		var actor pgtype.Int8
		if err := row.Scan(&tr.At, &actor, &tr.Action, &tr.Entity, &tr.EntityID, &tr.UserID, &tr.RoleID); err != nil {
			return TrailRow{}, err
		}
		if actor.Valid {
			tr.ActorID = actor.Int64
		}
		return tr, nil
	})
	if err != nil {
		return nil, shared.StoreFailure("audit: trail", err)
	}
	return out, nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalID(id int64) pgtype.Int8 {
	if id <= 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: id, Valid: true}
}
