package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/electcore/electcore/internal/shared"
)

type memoryRepo struct {
	mu          sync.Mutex
	roles       map[int64]Role
	perms       map[int64]Permission
	rolePerms   map[int64]map[int64]struct{}
	policies    map[string]AccessPolicy
	labels      map[string]SecurityLabel
	assignments []Assignment
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		roles:     make(map[int64]Role),
		perms:     make(map[int64]Permission),
		rolePerms: make(map[int64]map[int64]struct{}),
		policies:  make(map[string]AccessPolicy),
		labels:    make(map[string]SecurityLabel),
	}
}

func (m *memoryRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("role %d: %w", id, shared.ErrNotFound)
	}
	return role, nil
}

func (m *memoryRepo) RolesByIDs(ctx context.Context, ids []int64) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Role
	for _, id := range ids {
		if role, ok := m.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (m *memoryRepo) AppendAssignment(ctx context.Context, entry Assignment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = m.id()
	m.assignments = append(m.assignments, entry)
	return entry.ID, nil
}

func (m *memoryRepo) AssignmentHistory(ctx context.Context, userID int64) ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Assignment
	for _, a := range m.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListRoles(ctx context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return NormalizeName(out[i].Name) < NormalizeName(out[j].Name) })
	return out, nil
}

func (m *memoryRepo) CreateRole(ctx context.Context, role Role) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roles {
		if NormalizeName(existing.Name) == NormalizeName(role.Name) {
			return Role{}, fmt.Errorf("role %q: %w", role.Name, shared.ErrConflict)
		}
	}
	role.ID = m.id()
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRepo) UpdateRole(ctx context.Context, role Role) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[role.ID]; !ok {
		return Role{}, shared.ErrNotFound
	}
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRepo) DeleteRole(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return shared.ErrNotFound
	}
	for _, a := range m.assignments {
		if a.RoleID == id {
			return shared.ErrConflict
		}
	}
	delete(m.roles, id)
	return nil
}

func (m *memoryRepo) EnsureRole(ctx context.Context, role Role) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.roles {
		if NormalizeName(existing.Name) == NormalizeName(role.Name) {
			existing.Kind = role.Kind
			existing.Description = role.Description
			m.roles[id] = existing
			return existing, nil
		}
	}
	role.ID = m.id()
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryRepo) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.perms {
		if NormalizeName(p.Name) == NormalizeName(name) {
			p.Description = description
			m.perms[id] = p
			return p, nil
		}
	}
	p := Permission{ID: m.id(), Name: name, Description: description}
	m.perms[p.ID] = p
	return p, nil
}

func (m *memoryRepo) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[int64]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		set[id] = struct{}{}
	}
	m.rolePerms[roleID] = set
	return nil
}

func (m *memoryRepo) PermissionsForRoles(ctx context.Context, roleIDs []int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]struct{}{}
	for _, roleID := range roleIDs {
		for permID := range m.rolePerms[roleID] {
			seen[NormalizeName(m.perms[permID].Name)] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryRepo) ListPolicies(ctx context.Context, resourceType string) ([]AccessPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AccessPolicy
	for _, p := range m.policies {
		if resourceType == "" || p.ResourceType == resourceType {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepo) UpsertPolicy(ctx context.Context, policy AccessPolicy) (AccessPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.policies[policy.Name]; ok {
		policy.ID = existing.ID
	} else {
		policy.ID = m.id()
	}
	m.policies[policy.Name] = policy
	return policy, nil
}

func (m *memoryRepo) ListLabels(ctx context.Context) ([]SecurityLabel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SecurityLabel, 0, len(m.labels))
	for _, l := range m.labels {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (m *memoryRepo) UpsertLabel(ctx context.Context, label SecurityLabel) (SecurityLabel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.labels[label.Name]; ok {
		label.ID = existing.ID
	} else {
		label.ID = m.id()
	}
	m.labels[label.Name] = label
	return label, nil
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
