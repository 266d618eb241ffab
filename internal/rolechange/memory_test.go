package rolechange

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/electcore/electcore/internal/rbac"
	"github.com/electcore/electcore/internal/shared"
)

// memoryStore plays both the request repository and the role ledger so that an
// approval is visible to the next officer check, as in Postgres.
type memoryStore struct {
	mu          sync.Mutex
	requests    map[int64]Request
	roles       map[int64]rbac.Role
	assignments []rbac.Assignment
	nextID      int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{requests: make(map[int64]Request), roles: make(map[int64]rbac.Role)}
}

func (m *memoryStore) Create(ctx context.Context, req Request) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	req.ID = m.nextID
	m.requests[req.ID] = req
	return req, nil
}

func (m *memoryStore) Get(ctx context.Context, id int64) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return Request{}, shared.ErrNotFound
	}
	return req, nil
}

func (m *memoryStore) Decide(ctx context.Context, t Transition) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[t.RequestID]
	if !ok {
		return Request{}, fmt.Errorf("request %d: %w", t.RequestID, shared.ErrNotFound)
	}
	if req.Status != StatusRequested {
		return Request{}, fmt.Errorf("request %d is %s: %w", t.RequestID, req.Status, shared.ErrConflict)
	}
	at, by := t.At, t.By
	req.Status = t.To
	req.ProcessedAt = &at
	req.ProcessedBy = &by
	if t.To == StatusApproved {
		m.nextID++
		m.assignments = append(m.assignments, rbac.Assignment{ID: m.nextID, RoleID: req.RoleID, UserID: req.UserID, Kind: rbac.EntryGrant, At: at, By: by})
	}
	m.requests[req.ID] = req
	return req, nil
}

func (m *memoryStore) ListPending(ctx context.Context, limit, offset int) ([]Request, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []Request
	for _, r := range m.requests {
		if r.Status == StatusRequested {
			pending = append(pending, r)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	total := len(pending)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return pending[offset:end], total, nil
}

func (m *memoryStore) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return rbac.Role{}, fmt.Errorf("role %d: %w", id, shared.ErrNotFound)
	}
	return role, nil
}

func (m *memoryStore) HasRoleKind(ctx context.Context, userID int64, kinds ...rbac.RoleKind) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var history []rbac.Assignment
	for _, a := range m.assignments {
		if a.UserID == userID {
			history = append(history, a)
		}
	}
	for _, id := range rbac.Fold(history) {
		for _, k := range kinds {
			if m.roles[id].Kind == k {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *memoryStore) grantsFor(userID, roleID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.assignments {
		if a.UserID == userID && a.RoleID == roleID && a.Kind == rbac.EntryGrant {
			n++
		}
	}
	return n
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
