package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/electcore/electcore/internal/shared"
)

// Directory loads principals from the users table owned by the identity service.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory constructs a Directory.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// Principal returns the active principal with the given id.
func (d *Directory) Principal(ctx context.Context, id int64) (Principal, error) {
	var p Principal
	err := d.pool.QueryRow(ctx, `SELECT id, username, clearance_label, district, is_staff, is_superuser
FROM users WHERE id = $1 AND is_active`, id).Scan(&p.ID, &p.Username, &p.Clearance, &p.District, &p.Staff, &p.Superuser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, shared.ErrNotFound
		}
		return Principal{}, shared.StoreFailure("identity: load principal", err)
	}
	return p, nil
}
