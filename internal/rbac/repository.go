package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/electcore/electcore/internal/platform/db"
	"github.com/electcore/electcore/internal/shared"
)

// PGRepository provides PostgreSQL backed persistence for roles, policies and the ledger.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const roleColumns = `id, kind, name, description, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	var kind string
	if err := row.Scan(&role.ID, &kind, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	parsed, err := ParseRoleKind(kind)
	if err != nil {
		return Role{}, err
	}
	role.Kind = parsed
	return role, nil
}

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name_key`)
	if err != nil {
		return nil, shared.StoreFailure("rbac: list roles", err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, shared.StoreFailure("rbac: scan role", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreFailure("rbac: list roles", err)
	}
	return roles, nil
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("rbac: role %d: %w", id, shared.ErrNotFound)
		}
		return Role{}, shared.StoreFailure("rbac: get role", err)
	}
	return role, nil
}

// RolesByIDs loads the given roles ordered by id.
func (r *PGRepository) RolesByIDs(ctx context.Context, ids []int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, shared.StoreFailure("rbac: roles by ids", err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, shared.StoreFailure("rbac: scan role", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreFailure("rbac: roles by ids", err)
	}
	return roles, nil
}

// CreateRole inserts a new role; duplicate names surface as ErrConflict.
func (r *PGRepository) CreateRole(ctx context.Context, role Role) (Role, error) {
	created, err := scanRole(r.pool.QueryRow(ctx, `INSERT INTO roles (kind, name, name_key, description)
VALUES ($1, $2, $3, $4) RETURNING `+roleColumns, string(role.Kind), role.Name, NormalizeName(role.Name), role.Description))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, fmt.Errorf("rbac: role %q: %w", role.Name, shared.ErrConflict)
		}
		return Role{}, shared.StoreFailure("rbac: create role", err)
	}
	return created, nil
}

// UpdateRole updates an existing role.
func (r *PGRepository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	updated, err := scanRole(r.pool.QueryRow(ctx, `UPDATE roles SET kind = $2, name = $3, name_key = $4, description = $5, updated_at = NOW()
WHERE id = $1 RETURNING `+roleColumns, role.ID, string(role.Kind), role.Name, NormalizeName(role.Name), role.Description))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return Role{}, fmt.Errorf("rbac: role %d: %w", role.ID, shared.ErrNotFound)
		case db.IsUniqueViolation(err):
			return Role{}, fmt.Errorf("rbac: role %q: %w", role.Name, shared.ErrConflict)
		}
		return Role{}, shared.StoreFailure("rbac: update role", err)
	}
	return updated, nil
}

// EnsureRole inserts the role or refreshes kind/description of the existing one with the same name.
func (r *PGRepository) EnsureRole(ctx context.Context, role Role) (Role, error) {
	ensured, err := scanRole(r.pool.QueryRow(ctx, `INSERT INTO roles (kind, name, name_key, description)
VALUES ($1, $2, $3, $4)
ON CONFLICT (name_key) DO UPDATE SET kind = EXCLUDED.kind, description = EXCLUDED.description, updated_at = NOW()
RETURNING `+roleColumns, string(role.Kind), role.Name, NormalizeName(role.Name), role.Description))
	if err != nil {
		return Role{}, shared.StoreFailure("rbac: ensure role", err)
	}
	return ensured, nil
}

// DeleteRole removes a role by ID. Roles referenced by the ledger cannot be deleted.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1
AND NOT EXISTS (SELECT 1 FROM role_assignments WHERE role_id = $1)`, id)
	if err != nil {
		return shared.StoreFailure("rbac: delete role", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetRole(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("rbac: role %d referenced by assignments: %w", id, shared.ErrConflict)
	}
	return nil
}

// ListPermissions returns all permissions ordered by name.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name_key`)
	if err != nil {
		return nil, shared.StoreFailure("rbac: list permissions", err)
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, shared.StoreFailure("rbac: scan permission", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreFailure("rbac: list permissions", err)
	}
	return perms, nil
}

// EnsurePermission upserts a permission ensuring description is stored.
func (r *PGRepository) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `INSERT INTO permissions (name, name_key, description) VALUES ($1, $2, $3)
ON CONFLICT (name_key) DO UPDATE SET description = EXCLUDED.description
RETURNING id, name, description`, name, NormalizeName(name), description).Scan(&p.ID, &p.Name, &p.Description)
	if err != nil {
		return Permission{}, shared.StoreFailure("rbac: ensure permission", err)
	}
	return p, nil
}

// SetRolePermissions replaces the permission set of a role in one transaction.
func (r *PGRepository) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return replaceRolePermissions(ctx, tx, roleID, permissionIDs)
	})
	if err == nil || errors.Is(err, shared.ErrNotFound) {
		return err
	}
	return shared.StoreFailure("rbac: set role permissions", err)
}

func replaceRolePermissions(ctx context.Context, q db.Querier, roleID int64, permissionIDs []int64) error {
	if _, err := q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND NOT (permission_id = ANY($2))`, roleID, permissionIDs); err != nil {
		return shared.StoreFailure("rbac: set role permissions", err)
	}
	_, err := q.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`, roleID, permissionIDs)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("rbac: role %d permissions %v: %w", roleID, permissionIDs, shared.ErrNotFound)
	}
	if err != nil {
		return shared.StoreFailure("rbac: set role permissions", err)
	}
	return nil
}

// PermissionsForRoles returns deduplicated permission names for the roles.
func (r *PGRepository) PermissionsForRoles(ctx context.Context, roleIDs []int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT p.name_key FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = ANY($1) ORDER BY p.name_key`, roleIDs)
	if err != nil {
		return nil, shared.StoreFailure("rbac: permissions for roles", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, shared.StoreFailure("rbac: permissions for roles", err)
	}
	return names, nil
}

// ListPolicies returns policies for resourceType, or every policy when empty.
func (r *PGRepository) ListPolicies(ctx context.Context, resourceType string) ([]AccessPolicy, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, resource_type, rules FROM access_policies
WHERE $1 = '' OR resource_type = $1 ORDER BY id`, resourceType)
	if err != nil {
		return nil, shared.StoreFailure("rbac: list policies", err)
	}
	defer rows.Close()
	var policies []AccessPolicy
	for rows.Next() {
		var p AccessPolicy
		var raw []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.ResourceType, &raw); err != nil {
			return nil, shared.StoreFailure("rbac: scan policy", err)
		}
		if err := json.Unmarshal(raw, &p.Rules); err != nil {
			return nil, fmt.Errorf("rbac: policy %d rules: %w", p.ID, err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreFailure("rbac: list policies", err)
	}
	return policies, nil
}

// UpsertPolicy creates or replaces a policy by name.
func (r *PGRepository) UpsertPolicy(ctx context.Context, policy AccessPolicy) (AccessPolicy, error) {
	raw, err := json.Marshal(policy.Rules)
	if err != nil {
		return AccessPolicy{}, err
	}
	err = r.pool.QueryRow(ctx, `INSERT INTO access_policies (name, description, resource_type, rules)
VALUES ($1, $2, $3, $4)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, resource_type = EXCLUDED.resource_type, rules = EXCLUDED.rules
RETURNING id`, policy.Name, policy.Description, policy.ResourceType, raw).Scan(&policy.ID)
	if err != nil {
		return AccessPolicy{}, shared.StoreFailure("rbac: upsert policy", err)
	}
	return policy, nil
}

// ListLabels returns labels ordered by rank.
func (r *PGRepository) ListLabels(ctx context.Context) ([]SecurityLabel, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, rank, description FROM security_labels ORDER BY rank`)
	if err != nil {
		return nil, shared.StoreFailure("rbac: list labels", err)
	}
	defer rows.Close()
	var labels []SecurityLabel
	for rows.Next() {
		var l SecurityLabel
		if err := rows.Scan(&l.ID, &l.Name, &l.Rank, &l.Description); err != nil {
			return nil, shared.StoreFailure("rbac: scan label", err)
		}
		labels = append(labels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreFailure("rbac: list labels", err)
	}
	return labels, nil
}

// UpsertLabel creates or updates a label by name.
func (r *PGRepository) UpsertLabel(ctx context.Context, label SecurityLabel) (SecurityLabel, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO security_labels (name, rank, description) VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET rank = EXCLUDED.rank, description = EXCLUDED.description
RETURNING id`, label.Name, label.Rank, label.Description).Scan(&label.ID)
	if err != nil {
		return SecurityLabel{}, shared.StoreFailure("rbac: upsert label", err)
	}
	return label, nil
}

// AppendAssignment writes one ledger entry.
func (r *PGRepository) AppendAssignment(ctx context.Context, entry Assignment) (int64, error) {
	return InsertAssignment(ctx, r.pool, entry)
}

// AssignmentHistory returns the user's ledger entries in append order.
func (r *PGRepository) AssignmentHistory(ctx context.Context, userID int64) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, role_id, user_id, kind, at, COALESCE(by_user, 0)
FROM role_assignments WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, shared.StoreFailure("rbac: assignment history", err)
	}
	entries, err := pgx.CollectRows(rows, scanAssignment)
	if err != nil {
		return nil, shared.StoreFailure("rbac: assignment history", err)
	}
	return entries, nil
}

// RecentAssignments returns the latest ledger entries across all users, newest first.
func (r *PGRepository) RecentAssignments(ctx context.Context, limit int) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, role_id, user_id, kind, at, COALESCE(by_user, 0)
FROM role_assignments ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, shared.StoreFailure("rbac: recent assignments", err)
	}
	entries, err := pgx.CollectRows(rows, scanAssignment)
	if err != nil {
		return nil, shared.StoreFailure("rbac: recent assignments", err)
	}
	return entries, nil
}

func scanAssignment(row pgx.CollectableRow) (Assignment, error) {
	var a Assignment
	var kind string
	if err := row.Scan(&a.ID, &a.RoleID, &a.UserID, &kind, &a.At, &a.By); err != nil {
		return Assignment{}, err
	}
	a.Kind = EntryKind(kind)
	return a, nil
}

// InsertAssignment writes a ledger entry through q, which may be a pool or a transaction.
func InsertAssignment(ctx context.Context, q db.Querier, entry Assignment) (int64, error) {
	var by *int64
	if entry.By != 0 {
		by = &entry.By
	}
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO role_assignments (role_id, user_id, kind, at, by_user)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, entry.RoleID, entry.UserID, string(entry.Kind), entry.At, by).Scan(&id)
	if db.IsForeignKeyViolation(err) {
		return 0, fmt.Errorf("rbac: role %d user %d: %w", entry.RoleID, entry.UserID, shared.ErrNotFound)
	}
	if err != nil {
		return 0, shared.StoreFailure("rbac: insert assignment", err)
	}
	return id, nil
}
