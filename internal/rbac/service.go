package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/electcore/electcore/internal/identity"
	"github.com/electcore/electcore/internal/shared"
)

// Repository is the persistence port of the role store.
type Repository interface {
	LedgerRepository
	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	EnsureRole(ctx context.Context, role Role) (Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsurePermission(ctx context.Context, name, description string) (Permission, error)
	SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	PermissionsForRoles(ctx context.Context, roleIDs []int64) ([]string, error)
	ListPolicies(ctx context.Context, resourceType string) ([]AccessPolicy, error)
	UpsertPolicy(ctx context.Context, policy AccessPolicy) (AccessPolicy, error)
	ListLabels(ctx context.Context) ([]SecurityLabel, error)
	UpsertLabel(ctx context.Context, label SecurityLabel) (SecurityLabel, error)
}

// AuditPort receives audit events for administrative mutations.
type AuditPort interface {
	Emit(ctx context.Context, event shared.AuditEvent)
}

// Service orchestrates role store operations and administrative grants.
type Service struct {
	repo   Repository
	ledger *Ledger
	audit  AuditPort
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, ledger *Ledger, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, audit: audit, logger: logger}
}

// RoleInput carries role create/update fields.
type RoleInput struct {
	Name        string
	Kind        string
	Description string
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role. Only SystemOverride principals may define roles.
func (s *Service) CreateRole(ctx context.Context, actor identity.Principal, input RoleInput) (Role, error) {
	if !actor.SystemOverride() {
		return Role{}, fmt.Errorf("rbac: create role: %w: admin privileges required", shared.ErrForbidden)
	}
	role, err := roleFromInput(input)
	if err != nil {
		return Role{}, err
	}
	created, err := s.repo.CreateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.emit(ctx, actor.ID, "role.create", created.ID, shared.OutcomeAllowed)
	return created, nil
}

// UpdateRole edits an existing role. This is the only way a referenced role changes.
func (s *Service) UpdateRole(ctx context.Context, actor identity.Principal, id int64, input RoleInput) (Role, error) {
	if !actor.SystemOverride() {
		return Role{}, fmt.Errorf("rbac: update role: %w: admin privileges required", shared.ErrForbidden)
	}
	role, err := roleFromInput(input)
	if err != nil {
		return Role{}, err
	}
	role.ID = id
	updated, err := s.repo.UpdateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.emit(ctx, actor.ID, "role.update", id, shared.OutcomeAllowed)
	return updated, nil
}

// DeleteRole removes a role that was never referenced by the ledger.
func (s *Service) DeleteRole(ctx context.Context, actor identity.Principal, id int64) error {
	if !actor.SystemOverride() {
		return fmt.Errorf("rbac: delete role: %w: admin privileges required", shared.ErrForbidden)
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, actor.ID, "role.delete", id, shared.OutcomeAllowed)
	return nil
}

// HasRoleKind reports whether the user currently holds a role of any of the kinds.
func (s *Service) HasRoleKind(ctx context.Context, userID int64, kinds ...RoleKind) (bool, error) {
	return s.ledger.HasRoleKind(ctx, userID, kinds...)
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// SetRolePermissions replaces the permission set of a role.
func (s *Service) SetRolePermissions(ctx context.Context, actor identity.Principal, roleID int64, permissionIDs []int64) error {
	if !actor.SystemOverride() {
		return fmt.Errorf("rbac: set role permissions: %w: admin privileges required", shared.ErrForbidden)
	}
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.SetRolePermissions(ctx, roleID, dedupe(permissionIDs)); err != nil {
		return err
	}
	s.emit(ctx, actor.ID, "role.permissions", roleID, shared.OutcomeAllowed)
	return nil
}

// PermissionsForRoles returns the permission names granted by any of the roles.
func (s *Service) PermissionsForRoles(ctx context.Context, roleIDs []int64) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	return s.repo.PermissionsForRoles(ctx, roleIDs)
}

// ListPolicies returns policies bound to resourceType, or all when empty.
func (s *Service) ListPolicies(ctx context.Context, resourceType string) ([]AccessPolicy, error) {
	return s.repo.ListPolicies(ctx, strings.TrimSpace(resourceType))
}

// PoliciesFor is the evaluator-facing lookup of policies bound to a resource type.
func (s *Service) PoliciesFor(ctx context.Context, resourceType string) ([]AccessPolicy, error) {
	if strings.TrimSpace(resourceType) == "" {
		return nil, nil
	}
	return s.repo.ListPolicies(ctx, resourceType)
}

// SavePolicy creates or replaces a policy by name.
func (s *Service) SavePolicy(ctx context.Context, actor identity.Principal, policy AccessPolicy) (AccessPolicy, error) {
	if !actor.SystemOverride() {
		return AccessPolicy{}, fmt.Errorf("rbac: save policy: %w: admin privileges required", shared.ErrForbidden)
	}
	policy.Name = strings.TrimSpace(policy.Name)
	policy.ResourceType = strings.TrimSpace(policy.ResourceType)
	if policy.Name == "" || policy.ResourceType == "" {
		return AccessPolicy{}, fmt.Errorf("rbac: %w: policy name and resource type required", shared.ErrValidation)
	}
	for key, rule := range policy.Rules {
		if err := rule.validate(); err != nil {
			return AccessPolicy{}, fmt.Errorf("rbac: %w: rule %q: %v", shared.ErrValidation, key, err)
		}
	}
	saved, err := s.repo.UpsertPolicy(ctx, policy)
	if err != nil {
		return AccessPolicy{}, err
	}
	s.emit(ctx, actor.ID, "policy.save", saved.ID, shared.OutcomeAllowed)
	return saved, nil
}

// ListLabels returns security labels ordered by rank.
func (s *Service) ListLabels(ctx context.Context) ([]SecurityLabel, error) {
	return s.repo.ListLabels(ctx)
}

// AssignRole grants a role directly. The actor must hold an admin or officer role.
func (s *Service) AssignRole(ctx context.Context, actor identity.Principal, roleID, userID int64) (int64, error) {
	ok, err := s.ledger.HasRoleKind(ctx, actor.ID, RoleAdmin, RoleOfficer)
	if err != nil {
		return 0, err
	}
	if !ok {
		s.emit(ctx, actor.ID, "role.assign", roleID, shared.OutcomeDenied)
		return 0, fmt.Errorf("rbac: assign role: %w: admin/officer privileges required", shared.ErrForbidden)
	}
	id, err := s.ledger.Grant(ctx, roleID, userID, actor.ID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("role granted", slog.Int64("role_id", roleID), slog.Int64("user_id", userID), slog.Int64("by", actor.ID))
	s.emit(ctx, actor.ID, "role.assign", roleID, shared.OutcomeAllowed)
	return id, nil
}

// RevokeRole appends a revoke entry. Only admin-kind holders or SystemOverride may revoke.
func (s *Service) RevokeRole(ctx context.Context, actor identity.Principal, roleID, userID int64) (int64, error) {
	if !actor.SystemOverride() {
		ok, err := s.ledger.HasRoleKind(ctx, actor.ID, RoleAdmin)
		if err != nil {
			return 0, err
		}
		if !ok {
			s.emit(ctx, actor.ID, "role.revoke", roleID, shared.OutcomeDenied)
			return 0, fmt.Errorf("rbac: revoke role: %w: admin privileges required", shared.ErrForbidden)
		}
	}
	id, err := s.ledger.Revoke(ctx, roleID, userID, actor.ID)
	if err != nil {
		return 0, err
	}
	s.emit(ctx, actor.ID, "role.revoke", roleID, shared.OutcomeAllowed)
	return id, nil
}

func (s *Service) emit(ctx context.Context, actorID int64, action string, id int64, outcome string) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(ctx, shared.AuditEvent{
		PrincipalID: actorID,
		Action:      action,
		Resource:    shared.ResourceRef(shared.ResourceRole, id),
		Outcome:     outcome,
	})
}

func roleFromInput(input RoleInput) (Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Role{}, fmt.Errorf("rbac: %w: role name required", shared.ErrValidation)
	}
	kind, err := ParseRoleKind(input.Kind)
	if err != nil {
		return Role{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return Role{Name: name, Kind: kind, Description: strings.TrimSpace(input.Description)}, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
