package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/electcore/electcore/internal/shared"
)

// Store persists audit events to audit_logs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Record inserts the event. Re-delivered events with a known ID are ignored.
func (s *Store) Record(ctx context.Context, event shared.AuditEvent) error {
	meta, err := json.Marshal(event.Meta)
	if err != nil {
		return err
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO audit_logs (id, principal_id, action, resource, outcome, reason, request_id, meta, at)
VALUES ($1, NULLIF($2::bigint, 0), $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`,
		event.ID, event.PrincipalID, event.Action, event.Resource, event.Outcome, event.Reason, event.RequestID, meta, event.At)
	if err != nil {
		return shared.StoreFailure("audit: record", err)
	}
	return nil
}
