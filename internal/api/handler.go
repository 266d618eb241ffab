// Package api exposes the access/integrity core over JSON HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/electcore/electcore/internal/audit"
	"github.com/electcore/electcore/internal/elections"
	"github.com/electcore/electcore/internal/identity"
	"github.com/electcore/electcore/internal/platform/httpx"
	"github.com/electcore/electcore/internal/rbac"
	"github.com/electcore/electcore/internal/rolechange"
	"github.com/electcore/electcore/internal/shared"
	"github.com/electcore/electcore/internal/voting"
)

// RoleService is the role store surface used by the API.
type RoleService interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	GetRole(ctx context.Context, id int64) (rbac.Role, error)
	CreateRole(ctx context.Context, actor identity.Principal, input rbac.RoleInput) (rbac.Role, error)
	UpdateRole(ctx context.Context, actor identity.Principal, id int64, input rbac.RoleInput) (rbac.Role, error)
	DeleteRole(ctx context.Context, actor identity.Principal, id int64) error
	ListPermissions(ctx context.Context) ([]rbac.Permission, error)
	SetRolePermissions(ctx context.Context, actor identity.Principal, roleID int64, permissionIDs []int64) error
	ListPolicies(ctx context.Context, resourceType string) ([]rbac.AccessPolicy, error)
	SavePolicy(ctx context.Context, actor identity.Principal, policy rbac.AccessPolicy) (rbac.AccessPolicy, error)
	ListLabels(ctx context.Context) ([]rbac.SecurityLabel, error)
	AssignRole(ctx context.Context, actor identity.Principal, roleID, userID int64) (int64, error)
	RevokeRole(ctx context.Context, actor identity.Principal, roleID, userID int64) (int64, error)
}

// RoleChangeService is the role-change workflow surface used by the API.
type RoleChangeService interface {
	Submit(ctx context.Context, principal identity.Principal, roleID int64, reason string) (rolechange.Request, error)
	Decide(ctx context.Context, requestID int64, actor identity.Principal, action rolechange.Action) (rolechange.Request, error)
	Pending(ctx context.Context, actor identity.Principal, page shared.Pagination) ([]rolechange.Request, shared.Pagination, error)
}

// VotingService is the vote ledger surface used by the API.
type VotingService interface {
	Cast(ctx context.Context, voter identity.Principal, electionID, candidateID int64) (int64, error)
	ResultsFor(ctx context.Context, principal identity.Principal, electionID int64) ([]voting.TallyRow, error)
}

// ElectionLister reads elections and their candidates.
type ElectionLister interface {
	Get(ctx context.Context, id int64) (elections.Election, error)
	ListActive(ctx context.Context, at time.Time) ([]elections.Election, error)
	Candidates(ctx context.Context, electionID int64) ([]elections.Candidate, error)
}

// TrailService reads the audit trail.
type TrailService interface {
	Trail(ctx context.Context, actor identity.Principal, filters audit.TrailFilters) (audit.Result, error)
}

// Deps groups the services behind the handler.
type Deps struct {
	Evaluator   Evaluator
	Roles       RoleService
	RoleChanges RoleChangeService
	Voting      VotingService
	Elections   ElectionLister
	Trail       TrailService
	Logger      *slog.Logger
	Now         func() time.Time
}

// Handler serves the JSON API.
type Handler struct {
	deps      Deps
	gate      Gate
	logger    *slog.Logger
	validator *validator.Validate
	now       func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		deps:      deps,
		gate:      Gate{Evaluator: deps.Evaluator, Logger: logger},
		logger:    logger,
		validator: validator.New(),
		now:       now,
	}
}

// MountRoutes registers API routes. The caller installs authentication.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/authz/evaluate", h.evaluate)

	r.Route("/role-changes", func(r chi.Router) {
		r.Post("/", h.submitRoleChange)
		r.Get("/pending", h.pendingRoleChanges)
		r.Post("/{id}/decision", h.decideRoleChange)
	})
	r.Post("/assignments", h.assignRole)
	r.Post("/assignments/revoke", h.revokeRole)

	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAny(shared.ResourceRole, shared.PermRolesView, shared.PermRolesEdit))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{id}", h.getRole)
		r.Get("/permissions", h.listPermissions)
	})
	r.Post("/roles", h.createRole)
	r.Put("/roles/{id}", h.updateRole)
	r.Delete("/roles/{id}", h.deleteRole)
	r.Put("/roles/{id}/permissions", h.setRolePermissions)

	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAny(shared.ResourceRole, shared.PermPoliciesView))
		r.Get("/policies", h.listPolicies)
		r.Get("/labels", h.listLabels)
	})
	r.Post("/policies", h.savePolicy)

	r.Route("/elections", func(r chi.Router) {
		r.Get("/active", h.activeElections)
		r.Get("/{id}/candidates", h.candidates)
		r.Post("/{id}/votes", h.castVote)
		r.Get("/{id}/results", h.results)
	})

	r.Get("/audit/trail", h.trail)
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if err := h.validator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s failed %s", shared.ErrValidation, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, _ := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func principalFrom(r *http.Request) (identity.Principal, error) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		return identity.Principal{}, httpx.ErrUnauthorized
	}
	return p, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", shared.ErrValidation, name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", shared.ErrValidation, name)
	}
	return v, nil
}
