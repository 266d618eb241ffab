package api

import (
	"net/http"
	"strings"

	"github.com/electcore/electcore/internal/platform/httpx"
	"github.com/electcore/electcore/internal/policy"
	"github.com/electcore/electcore/internal/rbac"
	"github.com/electcore/electcore/internal/rolechange"
	"github.com/electcore/electcore/internal/shared"
)

type evaluateRequest struct {
	Action       string            `json:"action" validate:"required"`
	ResourceType string            `json:"resource_type" validate:"required"`
	ResourceID   int64             `json:"resource_id" validate:"gte=0"`
	ElectionID   int64             `json:"election_id" validate:"gte=0"`
	Attributes   map[string]string `json:"attributes"`
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		h.fail(w, r, "evaluate", err)
		return
	}
	var req evaluateRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "evaluate", err)
		return
	}
	resource := policy.Resource{Type: strings.TrimSpace(req.ResourceType), ID: req.ResourceID, ElectionID: req.ElectionID}
	decision, err := h.deps.Evaluator.Evaluate(r.Context(), principal, strings.TrimSpace(req.Action), resource, req.Attributes)
	if err != nil {
		h.fail(w, r, "evaluate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}

type submitRoleChangeRequest struct {
	RoleID int64  `json:"role_id" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"max=1000"`
}

func (h *Handler) submitRoleChange(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		h.fail(w, r, "submit role change", err)
		return
	}
	var req submitRoleChangeRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "submit role change", err)
		return
	}
	created, err := h.deps.RoleChanges.Submit(r.Context(), principal, req.RoleID, req.Reason)
	if err != nil {
		h.fail(w, r, "submit role change", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) pendingRoleChanges(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		h.fail(w, r, "pending role changes", err)
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		h.fail(w, r, "pending role changes", err)
		return
	}
	perPage, err := queryInt(r, "per_page")
	if err != nil {
		h.fail(w, r, "pending role changes", err)
		return
	}
	items, meta, err := h.deps.RoleChanges.Pending(r.Context(), principal, shared.Pagination{Page: page, PerPage: perPage})
	if err != nil {
		h.fail(w, r, "pending role changes", err)
		return
	}
	if items == nil {
		items = []rolechange.Request{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": items, "pagination": meta})
}

type decisionRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
}

func (h *Handler) decideRoleChange(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		h.fail(w, r, "decide role change", err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "decide role change", err)
		return
	}
	var req decisionRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "decide role change", err)
		return
	}
	action, err := rolechange.ParseAction(req.Action)
	if err != nil {
		h.fail(w, r, "decide role change", err)
		return
	}
	decided, err := h.deps.RoleChanges.Decide(r.Context(), id, principal, action)
	if err != nil {
		h.fail(w, r, "decide role change", err)
		return
	}
	httpx.JSON(w, http.StatusOK, decided)
}

type assignRequest struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		h.fail(w, r, "assign role", err)
		return
	}
	var req assignRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "assign role", err)
		return
	}
	id, err := h.deps.Roles.AssignRole(r.Context(), principal, req.RoleID, req.UserID)
	if err != nil {
		h.fail(w, r, "assign role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"assignment_id": id})
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		h.fail(w, r, "revoke role", err)
		return
	}
	var req assignRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "revoke role", err)
		return
	}
	id, err := h.deps.Roles.RevokeRole(r.Context(), principal, req.RoleID, req.UserID)
	if err != nil {
		h.fail(w, r, "revoke role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"assignment_id": id})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.deps.Roles.ListRoles(r.Context())
	if err != nil {
		h.fail(w, r, "list roles", err)
		return
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	httpx.JSON(w, http.StatusOK, roles)
}

type createRoleRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Kind        string `json:"kind" validate:"omitempty,oneof=admin officer voter custom"`
	Description string `json:"description" validate:"max=500"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		h.fail(w, r, "create role", err)
		return
	}
	var req createRoleRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "create role", err)
		return
	}
	role, err := h.deps.Roles.CreateRole(r.Context(), principal, rbac.RoleInput{Name: req.Name, Kind: req.Kind, Description: req.Description})
	if err != nil {
		h.fail(w, r, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "get role", err)
		return
	}
	role, err := h.deps.Roles.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		h.fail(w, r, "update role", err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "update role", err)
		return
	}
	var req createRoleRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "update role", err)
		return
	}
	role, err := h.deps.Roles.UpdateRole(r.Context(), principal, id, rbac.RoleInput{Name: req.Name, Kind: req.Kind, Description: req.Description})
	if err != nil {
		h.fail(w, r, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		h.fail(w, r, "delete role", err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "delete role", err)
		return
	}
	if err := h.deps.Roles.DeleteRole(r.Context(), principal, id); err != nil {
		h.fail(w, r, "delete role", err)
		return
	}
	httpx.NoContent(w)
}

type rolePermissionsRequest struct {
	PermissionIDs []int64 `json:"permission_ids" validate:"dive,gt=0"`
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		h.fail(w, r, "set role permissions", err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "set role permissions", err)
		return
	}
	var req rolePermissionsRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "set role permissions", err)
		return
	}
	if err := h.deps.Roles.SetRolePermissions(r.Context(), principal, id, req.PermissionIDs); err != nil {
		h.fail(w, r, "set role permissions", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.deps.Roles.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, r, "list permissions", err)
		return
	}
	if perms == nil {
		perms = []rbac.Permission{}
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) listPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.deps.Roles.ListPolicies(r.Context(), r.URL.Query().Get("resource_type"))
	if err != nil {
		h.fail(w, r, "list policies", err)
		return
	}
	if policies == nil {
		policies = []rbac.AccessPolicy{}
	}
	httpx.JSON(w, http.StatusOK, policies)
}

type savePolicyRequest struct {
	Name         string               `json:"name" validate:"required,max=100"`
	Description  string               `json:"description" validate:"max=500"`
	ResourceType string               `json:"resource_type" validate:"required,max=50"`
	Rules        map[string]rbac.Rule `json:"rules" validate:"required,min=1"`
}

func (h *Handler) savePolicy(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		h.fail(w, r, "save policy", err)
		return
	}
	var req savePolicyRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "save policy", err)
		return
	}
	saved, err := h.deps.Roles.SavePolicy(r.Context(), principal, rbac.AccessPolicy{
		Name:         req.Name,
		Description:  req.Description,
		ResourceType: req.ResourceType,
		Rules:        req.Rules,
	})
	if err != nil {
		h.fail(w, r, "save policy", err)
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
}

func (h *Handler) listLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := h.deps.Roles.ListLabels(r.Context())
	if err != nil {
		h.fail(w, r, "list labels", err)
		return
	}
	if labels == nil {
		labels = []rbac.SecurityLabel{}
	}
	httpx.JSON(w, http.StatusOK, labels)
}
