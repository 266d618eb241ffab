// Package rolechange implements the officer-approved role request workflow.
package rolechange

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/electcore/electcore/internal/identity"
	"github.com/electcore/electcore/internal/rbac"
	"github.com/electcore/electcore/internal/shared"
)

// Repository persists requests.
type Repository interface {
	Create(ctx context.Context, req Request) (Request, error)
	Get(ctx context.Context, id int64) (Request, error)
	// Decide applies t only while the request is still requested. Approvals
	// append the ledger grant in the same transaction. A request that is no
	// longer requested yields ErrConflict.
	Decide(ctx context.Context, t Transition) (Request, error)
	ListPending(ctx context.Context, limit, offset int) ([]Request, int, error)
}

// RoleReader resolves roles and role kinds held through the ledger.
type RoleReader interface {
	GetRole(ctx context.Context, id int64) (rbac.Role, error)
	HasRoleKind(ctx context.Context, userID int64, kinds ...rbac.RoleKind) (bool, error)
}

// AuditPort receives workflow events.
type AuditPort interface {
	Emit(ctx context.Context, event shared.AuditEvent)
}

// Service implements Submit, Decide and Pending.
type Service struct {
	repo   Repository
	roles  RoleReader
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, roles RoleReader, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, audit: audit, logger: logger, now: time.Now}
}

// WithClock overrides the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Submit files a request for roleID on behalf of the principal themself.
func (s *Service) Submit(ctx context.Context, principal identity.Principal, roleID int64, reason string) (Request, error) {
	if principal.ID == 0 {
		return Request{}, fmt.Errorf("rolechange: submit: %w: authenticated principal required", shared.ErrForbidden)
	}
	if _, err := s.roles.GetRole(ctx, roleID); err != nil {
		return Request{}, err
	}
	req, err := s.repo.Create(ctx, Request{
		UserID:    principal.ID,
		RoleID:    roleID,
		Reason:    strings.TrimSpace(reason),
		Status:    StatusRequested,
		CreatedAt: s.now(),
	})
	if err != nil {
		return Request{}, err
	}
	s.emit(ctx, principal.ID, "role_change.submit", req, shared.OutcomeAllowed, "")
	return req, nil
}

// Decide approves or rejects a pending request. Only officers decide and each
// request is decided exactly once.
func (s *Service) Decide(ctx context.Context, requestID int64, actor identity.Principal, action Action) (Request, error) {
	action, err := ParseAction(string(action))
	if err != nil {
		return Request{}, err
	}
	officer, err := s.roles.HasRoleKind(ctx, actor.ID, rbac.RoleOfficer)
	if err != nil {
		return Request{}, err
	}
	if !officer {
		s.emit(ctx, actor.ID, "role_change."+string(action), Request{ID: requestID}, shared.OutcomeDenied, "officer role required")
		return Request{}, fmt.Errorf("rolechange: decide: %w: officer role required", shared.ErrForbidden)
	}
	req, err := s.repo.Decide(ctx, Transition{RequestID: requestID, To: action.Target(), By: actor.ID, At: s.now()})
	if err != nil {
		s.emit(ctx, actor.ID, "role_change."+string(action), Request{ID: requestID}, shared.OutcomeDenied, err.Error())
		return Request{}, err
	}
	s.logger.Info("role change decided",
		slog.Int64("request_id", req.ID),
		slog.String("status", string(req.Status)),
		slog.Int64("by", actor.ID),
	)
	s.emit(ctx, actor.ID, "role_change."+string(action), req, shared.OutcomeAllowed, "")
	return req, nil
}

// Pending lists requests awaiting a decision, oldest first. Officers and
// SystemOverride principals only.
func (s *Service) Pending(ctx context.Context, actor identity.Principal, page shared.Pagination) ([]Request, shared.Pagination, error) {
	if !actor.SystemOverride() {
		officer, err := s.roles.HasRoleKind(ctx, actor.ID, rbac.RoleOfficer)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		if !officer {
			return nil, shared.Pagination{}, fmt.Errorf("rolechange: pending: %w: officer role required", shared.ErrForbidden)
		}
	}
	page = shared.NewPagination(page.Page, page.PerPage, 0)
	items, total, err := s.repo.ListPending(ctx, page.Limit(), page.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page.Page, page.PerPage, total), nil
}

func (s *Service) emit(ctx context.Context, actorID int64, action string, req Request, outcome, reason string) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{}
	if req.UserID != 0 {
		meta["user_id"] = req.UserID
		meta["role_id"] = req.RoleID
	}
	s.audit.Emit(ctx, shared.AuditEvent{
		PrincipalID: actorID,
		Action:      action,
		Resource:    shared.ResourceRef(shared.ResourceRoleChange, req.ID),
		Outcome:     outcome,
		Reason:      reason,
		Meta:        meta,
	})
}
